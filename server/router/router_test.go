package router

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdokita/askdokita/internal/profile"
	"github.com/askdokita/askdokita/server/ai"
	gwerrors "github.com/askdokita/askdokita/internal/errors"
	"github.com/askdokita/askdokita/server/middleware"
	"github.com/askdokita/askdokita/server/retrieval"
	"github.com/askdokita/askdokita/server/service/conversation"
	"github.com/askdokita/askdokita/server/sms"
	"github.com/askdokita/askdokita/store"
)

// fakeGenerator replays canned chunks for both call shapes.
type fakeGenerator struct {
	chunks []ai.Chunk
	err    error
}

func (f *fakeGenerator) Generate(_ context.Context, _ *ai.GenerateRequest) (*ai.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	var text strings.Builder
	grounded := false
	for _, c := range f.chunks {
		text.WriteString(c.Text)
		grounded = grounded || c.Grounded
	}
	return &ai.Result{Text: text.String(), Grounded: grounded}, nil
}

func (f *fakeGenerator) GenerateStream(_ context.Context, _ *ai.GenerateRequest) (<-chan ai.Chunk, <-chan error) {
	chunks := make(chan ai.Chunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		if f.err != nil {
			errs <- f.err
			return
		}
		for _, c := range f.chunks {
			chunks <- c
		}
	}()
	return chunks, errs
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type stubDriver struct {
	docs []string
}

func (s *stubDriver) Insert(_ context.Context, _, _ string, _ []float32) error { return nil }
func (s *stubDriver) Search(_ context.Context, _ string, _ []float32, _ int) ([]string, error) {
	return s.docs, nil
}
func (s *stubDriver) Close() error { return nil }

type testGateway struct {
	echo     *echo.Echo
	sessions *store.MemorySessionStore
}

func newTestGateway(t *testing.T, gen ai.Generator, sender *sms.Sender) *testGateway {
	t.Helper()

	sessions := store.NewMemorySessionStore()
	orchestrator := conversation.NewService(sessions, gen)
	index := retrieval.NewIndex(&stubDriver{docs: []string{"doc a", "doc b"}}, stubEmbedder{}, "health_docs")
	if sender == nil {
		sender = sms.NewSender(&sms.Config{})
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	gateway := NewGatewayService(&profile.Profile{Version: "test"}, orchestrator, index, sender, logger)

	e := echo.New()
	gateway.RegisterRoutes(e, middleware.RateLimit(middleware.NewRateLimiter(1000)))
	return &testGateway{echo: e, sessions: sessions}
}

func (g *testGateway) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	g.echo.ServeHTTP(rec, req)
	return rec
}

func (g *testGateway) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	g.echo.ServeHTTP(rec, req)
	return rec
}

func TestHandleRoot(t *testing.T) {
	g := newTestGateway(t, &fakeGenerator{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	g.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Welcome to AskDokita API"}`, rec.Body.String())
}

func TestHandleChat_StreamsNDJSON(t *testing.T) {
	g := newTestGateway(t, &fakeGenerator{chunks: []ai.Chunk{
		{Text: "Malaria "},
		{Text: "is treatable.", Grounded: true},
	}}, nil)

	rec := g.postJSON("/chat", `{"message":"Is malaria treatable?","session_id":"abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "abc", rec.Header().Get("X-Session-Id"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.JSONEq(t, `{"text":"Malaria "}`, lines[0])
	assert.JSONEq(t, `{"text":"is treatable."}`, lines[1])
	assert.JSONEq(t, `{"grounding":true}`, lines[2])
}

func TestHandleChat_UngroundedOmitsMarker(t *testing.T) {
	g := newTestGateway(t, &fakeGenerator{chunks: []ai.Chunk{{Text: "Rest well."}}}, nil)

	rec := g.postJSON("/chat", `{"message":"I have a cold","session_id":"abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 1)
	assert.JSONEq(t, `{"text":"Rest well."}`, lines[0])
}

func TestHandleChat_GeneratesSessionID(t *testing.T) {
	g := newTestGateway(t, &fakeGenerator{chunks: []ai.Chunk{{Text: "hi"}}}, nil)

	rec := g.postJSON("/chat", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	sessionID := rec.Header().Get("X-Session-Id")
	require.NotEmpty(t, sessionID)

	// The generated session now holds the exchange.
	history, err := g.sessions.Load(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Text)
	assert.Equal(t, "hi", history[1].Text)
}

func TestHandleChat_MissingMessage(t *testing.T) {
	g := newTestGateway(t, &fakeGenerator{}, nil)

	rec := g.postJSON("/chat", `{"session_id":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_GeneratorFailure(t *testing.T) {
	g := newTestGateway(t, &fakeGenerator{err: gwerrors.ProviderFailed("upstream down", nil)}, nil)

	rec := g.postJSON("/chat", `{"message":"hello","session_id":"abc"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleSMS_RepliesWithTwiML(t *testing.T) {
	g := newTestGateway(t, &fakeGenerator{chunks: []ai.Chunk{{Text: "Drink ORS."}}}, nil)

	rec := g.postForm("/sms", url.Values{
		"Body": {"My child has diarrhea"},
		"From": {"+2347012345678"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Response><Message>Drink ORS.</Message></Response>")

	// The sender's number keys the session.
	history, err := g.sessions.Load(context.Background(), "+2347012345678")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestHandleSMS_MissingFieldsStillValidXML(t *testing.T) {
	g := newTestGateway(t, &fakeGenerator{}, nil)

	rec := g.postForm("/sms", url.Values{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Response><Message>")
}

func TestHandleSMS_FailureEmbedsApology(t *testing.T) {
	g := newTestGateway(t, &fakeGenerator{err: gwerrors.ProviderFailed("down", nil)}, nil)

	rec := g.postForm("/sms", url.Values{
		"Body": {"question"},
		"From": {"+234700000000"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), apologyReply)
	assert.Contains(t, rec.Body.String(), "<Response><Message>")
}

func TestHandleSMSProviderB_MissingFields(t *testing.T) {
	g := newTestGateway(t, &fakeGenerator{}, nil)

	rec := g.postForm("/sms/at", url.Values{"text": {"question"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"status":"error"}`, rec.Body.String())
}

func TestHandleSMSProviderB_SuccessWithoutOutbound(t *testing.T) {
	g := newTestGateway(t, &fakeGenerator{chunks: []ai.Chunk{{Text: "reply"}}}, nil)

	rec := g.postForm("/sms/at", url.Values{
		"text": {"question"},
		"from": {"+234700000001"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success"}`, rec.Body.String())
}

func TestHandleSMSProviderB_DeliversReply(t *testing.T) {
	var sentForm url.Values
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		sentForm = r.PostForm
		w.Write([]byte(`{"SMSMessageData":{"Recipients":[{"number":"+234700000002","status":"Success"}]}}`))
	}))
	defer provider.Close()

	sender := sms.NewSender(&sms.Config{
		BaseURL:  provider.URL,
		Username: "askdokita",
		APIKey:   "key",
		SenderID: "DOKITA",
	})
	g := newTestGateway(t, &fakeGenerator{chunks: []ai.Chunk{{Text: "Take ORS."}}}, sender)

	rec := g.postForm("/sms/at", url.Values{
		"text": {"My child has diarrhea"},
		"from": {"+234700000002"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success"}`, rec.Body.String())

	require.NotNil(t, sentForm)
	assert.Equal(t, "+234700000002", sentForm.Get("to"))
	assert.Equal(t, "Take ORS.", sentForm.Get("message"))
	assert.Equal(t, "DOKITA", sentForm.Get("from"))
}

func TestHandleSMSProviderB_GeneratorFailure(t *testing.T) {
	g := newTestGateway(t, &fakeGenerator{err: gwerrors.ProviderFailed("down", nil)}, nil)

	rec := g.postForm("/sms/at", url.Values{
		"text": {"question"},
		"from": {"+234700000003"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"error"}`, rec.Body.String())
}

func TestHandleUSSD_MenuNavigation(t *testing.T) {
	g := newTestGateway(t, &fakeGenerator{chunks: []ai.Chunk{{Text: "Malaria is treatable."}}}, nil)

	tests := []struct {
		name string
		text string
		want string
	}{
		{"InitialMenu", "", ussdMenu},
		{"AskOption", "1", ussdPrompt},
		{"Question", "1*What is malaria?", "END Malaria is treatable."},
		{"About", "2", ussdAbout},
		{"InvalidOption", "3", ussdInvalid},
		{"InvalidDeepPath", "2*9", ussdInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := g.postForm("/ussd", url.Values{
				"phoneNumber": {"+234700000004"},
				"text":        {tt.text},
			})
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}

func TestHandleUSSD_QuestionIsStateless(t *testing.T) {
	g := newTestGateway(t, &fakeGenerator{chunks: []ai.Chunk{{Text: "reply"}}}, nil)

	rec := g.postForm("/ussd", url.Values{
		"phoneNumber": {"+234700000005"},
		"text":        {"1*What is cholera?"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	history, err := g.sessions.Load(context.Background(), "+234700000005")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHandleUSSD_FailureEndsWithApology(t *testing.T) {
	g := newTestGateway(t, &fakeGenerator{err: gwerrors.ProviderFailed("down", nil)}, nil)

	rec := g.postForm("/ussd", url.Values{
		"phoneNumber": {"+234700000006"},
		"text":        {"1*question"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "END "+apologyReply, rec.Body.String())
}

func TestHandleRetrieve(t *testing.T) {
	g := newTestGateway(t, &fakeGenerator{}, nil)

	rec := g.postJSON("/retrieve", `{"query":"malaria symptoms","top_k":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"documents":["doc a","doc b"]}`, rec.Body.String())
}

func TestHandleRetrieve_MissingQuery(t *testing.T) {
	g := newTestGateway(t, &fakeGenerator{}, nil)

	rec := g.postJSON("/retrieve", `{"top_k":2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStats_CountsExchanges(t *testing.T) {
	g := newTestGateway(t, &fakeGenerator{chunks: []ai.Chunk{{Text: "reply"}}}, nil)

	g.postForm("/sms", url.Values{"Body": {"q"}, "From": {"+234700000007"}})
	g.postJSON("/chat", `{"message":"q","session_id":"abc"}`)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	g.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"request_total":2`)
	assert.Contains(t, body, `"request_failed":0`)
	assert.Contains(t, body, `"sms"`)
	assert.Contains(t, body, `"web"`)
}
