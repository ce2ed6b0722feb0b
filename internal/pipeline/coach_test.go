package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/skillsprint/coach/internal/composer"
	"github.com/skillsprint/coach/internal/content"
	"github.com/skillsprint/coach/internal/fallback"
	"github.com/skillsprint/coach/internal/gateway"
	"github.com/skillsprint/coach/internal/intent"
	"github.com/skillsprint/coach/internal/profile"
	"github.com/skillsprint/coach/internal/topic"
)

// --- mock completer ---

type mockCompleter struct {
	configured bool
	text       string
	err        error
	calls      int
	lastPrompt composer.Prompt
	lastMax    int
}

func (m *mockCompleter) Configured() bool { return m.configured }

func (m *mockCompleter) Complete(ctx context.Context, p composer.Prompt, maxTokens int) (gateway.Completion, error) {
	m.calls++
	m.lastPrompt = p
	m.lastMax = maxTokens
	if !m.configured {
		return gateway.Completion{}, &gateway.Error{Kind: gateway.KindNotConfigured}
	}
	if m.err != nil {
		return gateway.Completion{}, m.err
	}
	return gateway.Completion{Text: m.text, Model: "test-model"}, nil
}

func notConfigured() *mockCompleter { return &mockCompleter{} }

func newTestCoach(t *testing.T, c Completer) *Coach {
	t.Helper()
	pack := content.Default()
	tbl, err := topic.NewTable(pack.Topics)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return NewCoach(
		intent.NewClassifier(tbl),
		composer.NewBuilder(pack.Prompts),
		c,
		fallback.New(pack),
		NewComposer(pack),
		220,
	)
}

func respond(t *testing.T, c *Coach, req Request) (Result, Trace) {
	t.Helper()
	return c.Respond(context.Background(), req)
}

func TestScenario_StartSprintNoTopicNoFocus(t *testing.T) {
	res, trace := respond(t, newTestCoach(t, notConfigured()), Request{User: "start a sprint"})

	if !strings.HasPrefix(res.Reply, "Starting a fresh sprint:") {
		t.Errorf("Reply = %q", res.Reply)
	}
	want := &SprintSeed{Title: "Focused improvement in General", Topic: "General"}
	if !reflect.DeepEqual(res.SprintSeed, want) {
		t.Errorf("SprintSeed = %+v, want %+v", res.SprintSeed, want)
	}
	if res.Reply != "Starting a fresh sprint: “Focused improvement in General”." {
		t.Errorf("Reply = %q", res.Reply)
	}
	if len(res.LearningLinks) != 0 {
		t.Errorf("LearningLinks = %v, want empty", res.LearningLinks)
	}
	if trace.Route != intent.RouteSprint || trace.Source != SourceStatic {
		t.Errorf("trace = %+v", trace)
	}
}

func TestScenario_BriefRoasNotConfigured(t *testing.T) {
	pack := content.Default()
	res, trace := respond(t, newTestCoach(t, notConfigured()), Request{User: "quick tips on ROAS"})

	if res.Reply != pack.Fallback.Brief["roas"] {
		t.Errorf("Reply = %q, want ROAS fallback", res.Reply)
	}
	if len(res.LearningLinks) != 0 {
		t.Errorf("LearningLinks = %v, want empty", res.LearningLinks)
	}
	if res.SprintSeed == nil || res.SprintSeed.Title != "Improve ROAS with creative + bids" {
		t.Errorf("SprintSeed = %+v", res.SprintSeed)
	}
	if trace.Source != SourceFallback || trace.ErrorKind != string(gateway.KindNotConfigured) {
		t.Errorf("trace = %+v", trace)
	}
	if trace.UpstreamError != "" {
		t.Errorf("UpstreamError = %q, want empty for not configured", trace.UpstreamError)
	}
}

func TestScenario_ResourcesOnEmail(t *testing.T) {
	res, _ := respond(t, newTestCoach(t, notConfigured()), Request{User: "show me resources on email"})

	want := []topic.Link{
		{Href: "/learn?topic=email-segmentation", Title: "Deep dive: email segmentation"},
		{Href: "/learn?topic=email-hooks", Title: "Deep dive: email hooks"},
	}
	if !reflect.DeepEqual(res.LearningLinks, want) {
		t.Errorf("LearningLinks = %+v, want %+v", res.LearningLinks, want)
	}
	if res.Reply != "Here are resources tailored to your question. Want me to start a sprint?" {
		t.Errorf("Reply = %q", res.Reply)
	}
	if res.SprintSeed == nil || res.SprintSeed.Title != "Improve email performance" {
		t.Errorf("SprintSeed = %+v", res.SprintSeed)
	}
}

func TestScenario_MalformedUpstreamMatchesNotConfigured(t *testing.T) {
	req := Request{User: "quick tips on ROAS", Profile: profile.Profile{Focus: []string{"Ecommerce"}}}

	broken := &mockCompleter{configured: true, text: `"{day": true`}
	got, trace := respond(t, newTestCoach(t, broken), req)
	want, _ := respond(t, newTestCoach(t, notConfigured()), req)

	if !reflect.DeepEqual(got, want) {
		t.Errorf("malformed result = %+v\nnot configured result = %+v", got, want)
	}
	if trace.ErrorKind != malformedCompletion || trace.Model != "test-model" {
		t.Errorf("trace = %+v", trace)
	}
}

func TestUpstreamFailuresFallBack(t *testing.T) {
	errs := []error{
		&gateway.Error{Kind: gateway.KindTransport, Err: errors.New("dial tcp: refused")},
		&gateway.Error{Kind: gateway.KindUpstream, Status: 500},
		&gateway.Error{Kind: gateway.KindEmpty},
	}
	pack := content.Default()
	for _, e := range errs {
		m := &mockCompleter{configured: true, err: e}
		res, trace := respond(t, newTestCoach(t, m), Request{User: "brief answer on CVR please"})
		if res.Reply != pack.Fallback.Brief["cvr"] {
			t.Errorf("%v: Reply = %q", e, res.Reply)
		}
		if trace.UpstreamError == "" || trace.Source != SourceFallback {
			t.Errorf("%v: trace = %+v", e, trace)
		}
		if m.calls != 1 {
			t.Errorf("%v: calls = %d, want 1", e, m.calls)
		}
	}
}

func TestBriefFromModel(t *testing.T) {
	m := &mockCompleter{
		configured: true,
		text:       "```json\n{\"reply\":\"1) Test 3 hooks.\\n2) Cap bids.\",\"quick\":[\"More on hooks\",\"Start sprint\",\"Show resources\",\"Extra\"]}\n```",
	}
	res, trace := respond(t, newTestCoach(t, m), Request{
		User:    "quick tips on ROAS",
		Profile: profile.Profile{Focus: []string{"Ecommerce"}},
		Tail:    profile.Tail{{Speaker: profile.SpeakerUser, Text: "hi"}},
	})

	if res.Reply != "1) Test 3 hooks.\n2) Cap bids." {
		t.Errorf("Reply = %q", res.Reply)
	}
	if !reflect.DeepEqual(res.Quick, []string{"More on hooks", "Start sprint", "Show resources"}) {
		t.Errorf("Quick = %v", res.Quick)
	}
	if trace.Source != SourceModel || trace.Model != "test-model" {
		t.Errorf("trace = %+v", trace)
	}
	if m.lastMax != 220 {
		t.Errorf("maxTokens = %d, want 220", m.lastMax)
	}
	if got := m.lastPrompt.Messages[len(m.lastPrompt.Messages)-1].Content; got != "quick tips on ROAS" {
		t.Errorf("last prompt message = %q", got)
	}
}

func TestBriefModelWithoutReplyFallsBack(t *testing.T) {
	m := &mockCompleter{configured: true, text: `{"answer":"wrong key"}`}
	res, trace := respond(t, newTestCoach(t, m), Request{User: "brief"})
	if res.Reply != content.Default().Fallback.Brief[content.DefaultKey] {
		t.Errorf("Reply = %q", res.Reply)
	}
	if trace.ErrorKind != malformedCompletion {
		t.Errorf("ErrorKind = %q", trace.ErrorKind)
	}
}

func TestNonBriefRoutesNeverCallUpstream(t *testing.T) {
	m := &mockCompleter{configured: true, text: `{"reply":"x"}`}
	c := newTestCoach(t, m)
	for _, u := range []string{"show resources", "start a sprint", "hello", ""} {
		respond(t, c, Request{User: u})
	}
	if m.calls != 0 {
		t.Errorf("calls = %d, want 0", m.calls)
	}
}

func TestDefaultReply_NoTopic(t *testing.T) {
	res, trace := respond(t, newTestCoach(t, notConfigured()), Request{User: "what should I do today"})

	if res.Reply != "Got it. Want a quick answer, a resource, or a focused sprint for this?" {
		t.Errorf("Reply = %q", res.Reply)
	}
	if len(res.LearningLinks) != 0 || res.SprintSeed != nil {
		t.Errorf("result = %+v", res)
	}
	if trace.Route != intent.RouteDefault {
		t.Errorf("Route = %q", trace.Route)
	}
}

func TestDefaultReply_WithTopic(t *testing.T) {
	res, _ := respond(t, newTestCoach(t, notConfigured()), Request{
		User:    "our churn is rising",
		Profile: profile.Profile{Focus: []string{"SaaS"}},
	})

	if res.Reply != "Got it. Do you want a brief answer on “Reduce churn with activation + value moments”, some resources, or shall I start a sprint for it?" {
		t.Errorf("Reply = %q", res.Reply)
	}
	if len(res.LearningLinks) != 2 || res.LearningLinks[0].Href != "/learn?topic=churn-causes" {
		t.Errorf("LearningLinks = %+v", res.LearningLinks)
	}
	want := &SprintSeed{Title: "Reduce churn with activation + value moments", Topic: "SaaS"}
	if !reflect.DeepEqual(res.SprintSeed, want) {
		t.Errorf("SprintSeed = %+v", res.SprintSeed)
	}
}

func TestEmptyUtteranceSkipsClassification(t *testing.T) {
	res, trace := respond(t, newTestCoach(t, notConfigured()), Request{User: ""})
	if trace.Route != intent.RouteDefault || trace.Topic != "" {
		t.Errorf("trace = %+v", trace)
	}
	if res.Reply == "" || len(res.Quick) == 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestResourcesWithoutTopic(t *testing.T) {
	res, _ := respond(t, newTestCoach(t, notConfigured()), Request{
		User:    "share some examples",
		Profile: profile.Profile{Focus: []string{"Sales Ops"}},
	})
	want := []topic.Link{
		{Href: "/learn?topic=getting-started", Title: "Deep dive: getting started"},
		{Href: "/learn?topic=sales%20ops-ideas", Title: "Deep dive: sales ops ideas"},
	}
	if !reflect.DeepEqual(res.LearningLinks, want) {
		t.Errorf("LearningLinks = %+v", res.LearningLinks)
	}
	if res.SprintSeed != nil {
		t.Errorf("SprintSeed = %+v, want nil", res.SprintSeed)
	}
}

func TestSprintTitlePrecedence(t *testing.T) {
	c := newTestCoach(t, notConfigured())

	res, _ := respond(t, c, Request{User: "start a sprint on CAC", Profile: profile.Profile{Goals30d: []string{"Grow list"}}})
	if res.SprintSeed.Title != "Lower CAC via targeting + funnel" {
		t.Errorf("topic title should win, got %q", res.SprintSeed.Title)
	}

	res, _ = respond(t, c, Request{User: "make new sprint", Profile: profile.Profile{Focus: []string{"Ops"}, Goals30d: []string{"", "Cut costs"}}})
	if res.SprintSeed.Title != "Cut costs" || res.SprintSeed.Topic != "Ops" {
		t.Errorf("goal title should win, got %+v", res.SprintSeed)
	}
}

func TestQuickRepliesNeverEmpty(t *testing.T) {
	c := newTestCoach(t, notConfigured())
	for _, u := range []string{"", "brief", "resources", "start sprint", "roas", "random words"} {
		res, _ := respond(t, c, Request{User: u})
		if len(res.Quick) == 0 {
			t.Errorf("%q: Quick is empty", u)
		}
	}
}

func TestFallbackPathIsByteIdentical(t *testing.T) {
	c := newTestCoach(t, notConfigured())
	req := Request{User: "quick tips on ROAS", Profile: profile.Profile{Focus: []string{"Marketing"}}}

	a, _ := respond(t, c, req)
	b, _ := respond(t, c, req)
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Errorf("results differ:\n%s\n%s", ja, jb)
	}
}

func TestResultJSONShape(t *testing.T) {
	res, _ := respond(t, newTestCoach(t, notConfigured()), Request{User: "hello"})
	b, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	for _, want := range []string{`"reply":`, `"quick":[`, `"learningLinks":[]`, `"sprintSeed":null`} {
		if !strings.Contains(s, want) {
			t.Errorf("JSON %s missing %s", s, want)
		}
	}
}

func TestQuickRepliesAreCopies(t *testing.T) {
	c := newTestCoach(t, notConfigured())
	a, _ := respond(t, c, Request{User: "hello"})
	a.Quick[0] = "mutated"
	b, _ := respond(t, c, Request{User: "hello"})
	if b.Quick[0] == "mutated" {
		t.Error("quick replies share backing storage across requests")
	}
}
