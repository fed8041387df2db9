package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/attempt"
	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/database"
	"github.com/smquiz/quiz-backend/internal/middleware"
	"github.com/smquiz/quiz-backend/internal/model"
	"github.com/smquiz/quiz-backend/internal/repository"
	"github.com/smquiz/quiz-backend/internal/response"
	"github.com/smquiz/quiz-backend/internal/service"
	"github.com/smquiz/quiz-backend/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   response.ErrCode
	}{
		{&model.QuestionError{Field: "options", Reason: "x"}, http.StatusBadRequest, response.ErrInvalidQuestion},
		{fmt.Errorf("load: %w", service.ErrPaperNotFound), http.StatusNotFound, response.ErrPaperNotFound},
		{attempt.ErrAttemptNotFound, http.StatusNotFound, response.ErrAttemptNotFound},
		{attempt.ErrSessionClosed, http.StatusGone, response.ErrAttemptClosed},
		{service.ErrAttemptActive, http.StatusConflict, response.ErrAttemptActive},
		{attempt.ErrAttemptActive, http.StatusConflict, response.ErrAttemptActive},
		{service.ErrNotOwner, http.StatusForbidden, response.ErrForbidden},
		{service.ErrNotSubmitted, http.StatusConflict, response.ErrNotSubmitted},
		{service.ErrAlreadySubmitted, http.StatusConflict, response.ErrAlreadySubmitted},
		{service.ErrDuplicateQuestion, http.StatusBadRequest, response.ErrInvalidPayload},
		{repository.ErrNotFound, http.StatusNotFound, response.ErrNotFound},
		{errors.New("boom"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			status, code := statusFor(tc.err)
			if status != tc.status || code != tc.code {
				t.Errorf("statusFor = %d %s, want %d %s", status, code, tc.status, tc.code)
			}
		})
	}
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var env response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return env
}

func TestFetchQuestionsRequiresPaper(t *testing.T) {
	h := NewQuestionHandler(nil, zerolog.Nop())
	r := gin.New()
	r.GET("/questions", h.FetchQuestions)

	for _, q := range []string{"", "?subject_id=nope", "?set_id=123"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/questions"+q, nil))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%q: status = %d, want 400", q, w.Code)
		}
		env := decodeEnvelope(t, w)
		if env.Error == nil || env.Error.Code != response.ErrValidation {
			t.Errorf("%q: error = %+v", q, env.Error)
		}
	}
}

func TestLoginValidation(t *testing.T) {
	h := NewAuthHandler(nil, zerolog.Nop())
	r := gin.New()
	r.POST("/login", h.Login)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"not-an-email"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	env := decodeEnvelope(t, w)
	if env.Error == nil || env.Error.Fields["email"] == "" || env.Error.Fields["password"] == "" {
		t.Fatalf("fields = %+v, want email and password errors", env.Error)
	}
}

func TestResetSessionRejectsBadID(t *testing.T) {
	h := NewAuthHandler(nil, zerolog.Nop())
	r := gin.New()
	r.DELETE("/users/:id/session", h.ResetSession)

	for _, id := range []string{"abc", "0", "-3"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/users/"+id+"/session", nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("id %q: status = %d, want 400", id, w.Code)
		}
	}
}

func TestBuildMonitorRows(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	live := []service.LiveAttempt{
		{AttemptID: a, Phase: model.PhaseInProgress, AnsweredCount: 3},
		{AttemptID: b, Phase: model.PhaseInstructions},
	}
	progress := &service.ProgressSnapshot{
		AnsweredCounts:  map[uuid.UUID]int64{a: 2},
		ViolationCounts: map[uuid.UUID]int64{a: 1},
		TotalViolations: 4,
		TotalSubmitted:  7,
	}

	rows, stats := buildMonitorRows(live, progress)
	if len(rows) != 2 || rows[0].PersistedAnswers != 2 || rows[0].PersistedViolations != 1 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[1].PersistedAnswers != 0 {
		t.Errorf("attempt without persisted answers got %d", rows[1].PersistedAnswers)
	}
	want := monitorStats{TotalLive: 2, TotalInProgress: 1, TotalSubmitted: 7, TotalViolations: 4}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}

	if _, stats := buildMonitorRows(live, nil); stats.TotalSubmitted != 0 || stats.TotalLive != 2 {
		t.Errorf("nil progress stats = %+v", stats)
	}
}

func TestFormatUptime(t *testing.T) {
	cases := map[time.Duration]string{
		42 * time.Second:             "0m 42s",
		3*time.Hour + 5*time.Minute:  "3h 5m 0s",
		49*time.Hour + 2*time.Second: "2d 1h 0m 2s",
	}
	for d, want := range cases {
		if got := formatUptime(d); got != want {
			t.Errorf("formatUptime(%v) = %q, want %q", d, got, want)
		}
	}
}

// ─── Attempt stream ─────────────────────────────────────────────────

type streamFixture struct {
	registry *attempt.Registry
	session  *attempt.Session
	server   *httptest.Server
	router   *gin.Engine
}

func newStreamFixture(t *testing.T, owner int) *streamFixture {
	t.Helper()
	registry := attempt.NewRegistry(time.Minute, 0, zerolog.Nop())
	t.Cleanup(registry.CloseAll)

	subject := uuid.New()
	questions := []model.Question{
		{ID: uuid.New(), SubjectID: subject, Title: "2+2?", Marks: 1,
			Body: model.ChoiceBody{Options: []string{"3", "4", "5", "6"}, Answer: 1}},
		{ID: uuid.New(), SubjectID: subject, Title: "7*6?", Marks: 1,
			Body: model.IntegerBody{Answer: 42}},
	}
	sess, err := registry.Open(attempt.Options{
		Candidate: attempt.Candidate{ID: owner, Name: "Student"},
		Paper:     model.PaperRef{SubjectID: subject},
		Title:     "Arithmetic",
		Questions: questions,
		Policy:    config.DefaultPolicy(),
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	attempts := service.NewAttemptService(registry, nil, nil, nil, nil, nil, config.DefaultPolicy(), 0, zerolog.Nop())
	h := NewWSHandler(attempts, zerolog.Nop(), nil)

	r := gin.New()
	r.GET("/ws/:id", func(c *gin.Context) {
		var uid int
		fmt.Sscan(c.Query("user"), &uid)
		c.Set(middleware.ContextKeyClaims, &service.Claims{TokenType: service.TokenTypeStudent, UserID: uid})
	}, h.AttemptStream)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &streamFixture{registry: registry, session: sess, server: srv, router: r}
}

func (f *streamFixture) dial(t *testing.T, user int) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws%s/ws/%s?user=%d", strings.TrimPrefix(f.server.URL, "http"), f.session.ID(), user)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type streamEvent struct {
	Event    string          `json:"event"`
	Action   string          `json:"action"`
	Trigger  string          `json:"trigger"`
	Snapshot model.Snapshot  `json:"snapshot"`
	Result   json.RawMessage `json:"result"`
}

// next returns the next event other than timer ticks.
func next(t *testing.T, conn *websocket.Conn) streamEvent {
	t.Helper()
	for {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var ev streamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		if ev.Event != "timer" {
			return ev
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestAttemptStreamFlow(t *testing.T) {
	f := newStreamFixture(t, 9)
	conn := f.dial(t, 9)

	ev := next(t, conn)
	if ev.Event != "state" || ev.Snapshot.Phase != model.PhaseInstructions {
		t.Fatalf("first event = %+v, want instructions state", ev)
	}
	if len(ev.Snapshot.Questions) != 2 {
		t.Fatalf("snapshot has %d questions", len(ev.Snapshot.Questions))
	}

	send(t, conn, `{"action":"select","index":0,"option":1}`)
	if ev := next(t, conn); ev.Event != "rejected" || ev.Action != "select" {
		t.Fatalf("select before start: %+v", ev)
	}

	send(t, conn, `{"action":"start","accept":false}`)
	if ev := next(t, conn); ev.Event != "rejected" || ev.Action != "start" {
		t.Fatalf("start without accept: %+v", ev)
	}

	send(t, conn, `{"action":"start","accept":true}`)
	if ev := next(t, conn); ev.Event != "started" || ev.Snapshot.Phase != model.PhaseInProgress {
		t.Fatalf("start: %+v", ev)
	}

	send(t, conn, `{"action":"select","index":0,"option":1}`)
	send(t, conn, `{"action":"select","index":1,"value":41}`)
	send(t, conn, `{"action":"navigate","index":5}`)
	if ev := next(t, conn); ev.Event != "rejected" || ev.Action != "navigate" {
		t.Fatalf("out of range navigate: %+v", ev)
	}

	send(t, conn, `{"action":"signal","kind":"window_blur"}`)
	if ev := next(t, conn); ev.Event != "warning" {
		t.Fatalf("blur: %+v", ev)
	}

	send(t, conn, `{"action":"submit"}`)
	ev = next(t, conn)
	if ev.Event != "submitted" || ev.Trigger != "manual" {
		t.Fatalf("submit: %+v", ev)
	}
	var result model.ScoreResult
	if err := json.Unmarshal(ev.Result, &result); err != nil {
		t.Fatal(err)
	}
	// One right, one wrong at a third of a mark.
	if result.Correct != 1 || result.Wrong != 1 || result.Score != 0.67 {
		t.Errorf("result = %+v", result)
	}

	send(t, conn, `{"action":"select","index":1,"value":42}`)
	if ev := next(t, conn); ev.Event != "rejected" {
		t.Fatalf("select after submit: %+v", ev)
	}
	send(t, conn, `{"action":"submit"}`)
	if ev := next(t, conn); ev.Event != "rejected" {
		t.Fatalf("second submit: %+v", ev)
	}
}

func TestAttemptStreamViolationLimit(t *testing.T) {
	f := newStreamFixture(t, 3)
	conn := f.dial(t, 3)
	next(t, conn)

	send(t, conn, `{"action":"start","accept":true}`)
	next(t, conn)

	send(t, conn, `{"action":"blocked","kind":"copy"}`)
	send(t, conn, `{"action":"signal","kind":"visibility_hidden"}`)
	send(t, conn, `{"action":"signal","kind":"visibility_visible"}`)
	send(t, conn, `{"action":"signal","kind":"window_blur"}`)
	send(t, conn, `{"action":"signal","kind":"fullscreen_exit"}`)

	var got []string
	for len(got) < 3 {
		got = append(got, next(t, conn).Event)
	}
	want := []string{"warning", "warning", "submitted"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestAttemptStreamRejectsOtherUser(t *testing.T) {
	f := newStreamFixture(t, 9)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/ws/%s?user=10", f.session.ID()), nil)
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}

	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws/"+uuid.NewString()+"?user=9", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown attempt: status = %d, want 404", w.Code)
	}
}

func TestAttemptStreamUnknownAction(t *testing.T) {
	f := newStreamFixture(t, 4)
	conn := f.dial(t, 4)
	next(t, conn)

	send(t, conn, `{"action":"teleport"}`)
	if ev := next(t, conn); ev.Event != "rejected" || ev.Action != "teleport" {
		t.Fatalf("unknown action: %+v", ev)
	}
	send(t, conn, `{"action":"state"}`)
	if ev := next(t, conn); ev.Event != "state" {
		t.Fatalf("state: %+v", ev)
	}
}

func TestHealth(t *testing.T) {
	registry := attempt.NewRegistry(time.Minute, 0, zerolog.Nop())
	t.Cleanup(registry.CloseAll)

	var body struct {
		Data struct {
			Status string          `json:"status"`
			Stores database.Health `json:"stores"`
		} `json:"data"`
	}
	call := func(checker *database.Checker) int {
		r := gin.New()
		r.GET("/health", NewHealthHandler(checker, registry).Health)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return w.Code
	}

	if code := call(database.NewChecker(nil, nil)); code != http.StatusOK || body.Data.Status != "ok" {
		t.Errorf("no stores: %d %+v", code, body.Data)
	}
	if body.Data.Stores.Postgres != "disabled" {
		t.Errorf("postgres = %q", body.Data.Stores.Postgres)
	}

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { rdb.Close() })
	if code := call(database.NewChecker(nil, rdb)); code != http.StatusServiceUnavailable || body.Data.Status != "degraded" {
		t.Errorf("redis down: %d %+v", code, body.Data)
	}
	if body.Data.Stores.Redis != "unreachable" {
		t.Errorf("redis = %q", body.Data.Stores.Redis)
	}
}

func TestSubmitResultRejectsLiveAttempt(t *testing.T) {
	f := newStreamFixture(t, 9)
	attempts := service.NewAttemptService(f.registry, nil, nil, nil, nil, nil, config.DefaultPolicy(), 0, zerolog.Nop())
	h := NewResultHandler(nil, attempts, zerolog.Nop())

	r := gin.New()
	r.POST("/results", func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{TokenType: service.TokenTypeStudent, UserID: 9})
	}, h.SubmitResult)

	body := fmt.Sprintf(`{"attempt_id":%q,"subject_id":%q,"subject_name":"Arithmetic","questions":[%q]}`,
		f.session.ID(), f.session.Paper().SubjectID, uuid.New())
	req := httptest.NewRequest(http.MethodPost, "/results", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (%s)", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), string(response.ErrAttemptActive)) {
		t.Errorf("body %s does not carry %s", w.Body.String(), response.ErrAttemptActive)
	}
}
