package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/hrygo/fitcoach/ai/pipeline"
	"github.com/hrygo/fitcoach/ai/services/persist"
	"github.com/hrygo/fitcoach/internal/profile"
	"github.com/hrygo/fitcoach/internal/testutil"
	"github.com/hrygo/fitcoach/store"
	"github.com/hrygo/fitcoach/store/csvlog"
)

const testUserID = "1503960366"

var testNow = time.Date(2026, 4, 14, 8, 0, 0, 0, time.UTC)

type stubChat struct {
	runFunc func(ctx context.Context, state *pipeline.ChatTurnState) error
	states  []*pipeline.ChatTurnState
}

func (s *stubChat) Run(ctx context.Context, state *pipeline.ChatTurnState) error {
	s.states = append(s.states, state)
	return s.runFunc(ctx, state)
}

type stubTasks struct {
	answer string
	err    error
	states []*pipeline.TaskState
}

func (s *stubTasks) Run(_ context.Context, state *pipeline.TaskState) error {
	s.states = append(s.states, state)
	if s.err != nil {
		return s.err
	}
	state.Answer = s.answer
	return nil
}

type stubTitles struct{ title string }

func (s stubTitles) Generate(context.Context, string, string) (string, error) {
	return s.title, nil
}

type profileMap map[string]*store.UserProfile

func (m profileMap) Get(id string) (*store.UserProfile, bool) {
	p, ok := m[id]
	return p, ok
}

// recordingQueue keeps tasks so a test can run them after the response.
type recordingQueue struct{ tasks []*persist.Task }

func (q *recordingQueue) Enqueue(task *persist.Task) (string, bool) {
	q.tasks = append(q.tasks, task)
	return task.Kind, true
}

func (q *recordingQueue) runAll(t *testing.T) {
	t.Helper()
	for _, task := range q.tasks {
		require.NoError(t, task.Run(context.Background()))
	}
}

type testEnv struct {
	service *APIV1Service
	echo    *echo.Echo
	chat    *stubChat
	tasks   *stubTasks
	queue   *recordingQueue
	log     *csvlog.ConversationLog
	dir     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	prof := &profile.Profile{
		ReferenceDate:          "2016-04-14",
		MaxConcurrentPipelines: 2,
		RequestTimeout:         5,
		Data:                   dir,
	}

	env := &testEnv{
		chat: &stubChat{runFunc: func(_ context.Context, state *pipeline.ChatTurnState) error {
			state.Answer = "Keep walking!"
			return nil
		}},
		tasks: &stubTasks{},
		queue: &recordingQueue{},
		log:   csvlog.NewConversationLog(prof.MessagesPath(), prof.SubjectsPath(), nil),
		dir:   dir,
	}

	s := NewAPIV1Service(prof, store.New(testutil.NewFitnessDriver(t), prof))
	s.Conversations = env.log
	s.Profiles = profileMap{testUserID: {ID: testUserID, Name: "Alex", Age: "34", Height: "1.78", Gender: "male"}}
	s.Clicks = csvlog.NewClickLog(prof.ClickLogDir())
	s.Queue = env.queue
	s.Chat = env.chat
	s.Tasks = env.tasks
	s.Titles = stubTitles{title: "Sleep after running"}
	s.now = func() time.Time { return testNow }

	env.service = s
	env.echo = echo.New()
	s.RegisterGateway(context.Background(), env.echo)
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.echo.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func (e *testEnv) doList(t *testing.T, target string) (int, []map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var out []map[string]any
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestRoots(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodGet, "/data/", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Welcome to the Fitness Data API", body["message"])

	code, body = env.do(t, http.MethodGet, "/chat/", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Welcome to the Fitness Chatbot part", body["message"])
}

func TestChatNewConversation(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/chat/chat", `{"user_id":"1503960366","message":"How did I sleep?"}`)
	require.Equal(t, http.StatusOK, code)
	conversationID := testUserID + "_1776153600"
	assert.Equal(t, "Keep walking!", body["response"])
	assert.Equal(t, conversationID, body["conversation_id"])

	require.Len(t, env.chat.states, 1)
	state := env.chat.states[0]
	assert.Equal(t, conversationID, state.ConversationID)
	assert.True(t, strings.HasPrefix(state.RawMessage, "Today is 14-04-2016. The user details are:\n- Name: Alex\n"))
	assert.Contains(t, state.RawMessage, "- Height: 1.78 meters\n")
	assert.True(t, strings.HasSuffix(state.RawMessage, "This is the users question: How did I sleep?"))

	require.Len(t, env.queue.tasks, 2)
	assert.Equal(t, "subject", env.queue.tasks[0].Kind)
	assert.Equal(t, "subject:"+conversationID, env.queue.tasks[0].Key)
	assert.Equal(t, "messages", env.queue.tasks[1].Kind)
	env.queue.runAll(t)

	messages, err := env.log.ListMessages(conversationID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, store.RoleUser, messages[0].Role)
	assert.Contains(t, messages[0].Message, "How did I sleep?")
	assert.Equal(t, store.RoleAssistant, messages[1].Role)
	assert.Equal(t, "Keep walking!", messages[1].Message)

	code, body = env.do(t, http.MethodGet, "/data/conversation_subjects/"+testUserID, "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["total"])
	conversations := body["conversations"].([]any)
	require.Len(t, conversations, 1)
	assert.Equal(t, "Sleep after running", conversations[0].(map[string]any)["subject"])
}

func TestChatExistingConversationSkipsTitle(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/chat/chat", `{"user_id":"1503960366","message":"And steps?","conversation_id":"c-1"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "c-1", body["conversation_id"])

	require.Len(t, env.queue.tasks, 1)
	assert.Equal(t, "messages", env.queue.tasks[0].Kind)
}

func TestChatModelFailure(t *testing.T) {
	env := newTestEnv(t)
	env.chat.runFunc = func(context.Context, *pipeline.ChatTurnState) error {
		return errors.New("upstream 500")
	}

	code, body := env.do(t, http.MethodPost, "/chat/chat", `{"user_id":"1503960366","message":"hi","conversation_id":"c-9"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, chatFailureMessage, body["response"])
	assert.Equal(t, "c-9", body["conversation_id"])
	assert.Empty(t, env.queue.tasks)
}

func TestChatBusyKeepsConversationID(t *testing.T) {
	env := newTestEnv(t)
	env.service.pipelineSemaphore = semaphore.NewWeighted(1)
	require.NoError(t, env.service.pipelineSemaphore.Acquire(context.Background(), 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/chat/chat", strings.NewReader(`{"user_id":"1503960366","message":"hi"}`)).WithContext(ctx)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, chatFailureMessage, body.Response)
	assert.Equal(t, testUserID+"_1776153600", body.ConversationID)
	assert.Empty(t, env.chat.states)
	assert.Empty(t, env.queue.tasks)
}

func TestChatValidation(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/chat/chat", `{"user_id":"42","message":"hi"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "User not found", body["error"])

	code, _ = env.do(t, http.MethodPost, "/chat/chat", `{"user_id":"1503960366","message":"  "}`)
	assert.Equal(t, http.StatusBadRequest, code)

	assert.Empty(t, env.chat.states)
}

func TestChatDisabledWithoutModel(t *testing.T) {
	env := newTestEnv(t)
	env.service.Chat = nil

	code, _ := env.do(t, http.MethodPost, "/chat/chat", `{"user_id":"1503960366","message":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestNewGoal(t *testing.T) {
	env := newTestEnv(t)
	env.tasks.answer = "```json\n{\"new_goal\": 11000, \"reason\": \"You averaged 10452 steps.\"}\n```"

	code, body := env.do(t, http.MethodGet, "/chat/new_goal?date=2016-04-14&metric=steps&current_goal=10000&user_id=1503960366&average=10452.5", "")
	require.Equal(t, http.StatusOK, code)
	suggestion := body["suggestion"].(map[string]any)
	assert.EqualValues(t, 11000, suggestion["new_goal"])

	require.Len(t, env.tasks.states, 1)
	state := env.tasks.states[0]
	assert.Equal(t, pipeline.TaskGoal, state.TaskType)
	assert.Contains(t, state.Message, "Today is 2016-04-14.")
	assert.Contains(t, state.Message, "The current goal is 10000 per day.")
	assert.Contains(t, state.Message, "The user had an average of 10452.5 last week!")
}

func TestNewGoalWithoutAverage(t *testing.T) {
	env := newTestEnv(t)
	env.tasks.answer = `{"new_goal": 9000}`

	code, _ := env.do(t, http.MethodGet, "/chat/new_goal?date=2016-04-14&metric=steps&current_goal=10000&user_id=1503960366&average=0", "")
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, env.tasks.states[0].Message, "average of")

	code, _ = env.do(t, http.MethodGet, "/chat/new_goal?date=2016-04-14&metric=steps&current_goal=lots&user_id=1503960366&average=0", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTaskUnparseableAnswer(t *testing.T) {
	env := newTestEnv(t)
	env.tasks.answer = "Sure! Walk more and sleep well."

	code, body := env.do(t, http.MethodGet, "/chat/recommendations?date=2016-04-14&user_id=1503960366", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"error": taskFailureMessage}, body)
}

func TestTaskPipelineFailure(t *testing.T) {
	env := newTestEnv(t)
	env.tasks.err = errors.New("model timeout")

	code, body := env.do(t, http.MethodGet, "/chat/suggested_questions?date=2016-04-14&user_id=1503960366", "")
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, taskFailureMessage, body["error"])
}

func TestTaskUnknownProfile(t *testing.T) {
	env := newTestEnv(t)

	for _, target := range []string{
		"/chat/recommendations?date=2016-04-14&user_id=7",
		"/chat/suggested_questions?date=2016-04-14&user_id=7",
		"/chat/detail?date=2016-04-14&metric=sleep&user_id=7",
		"/chat/new_goal?date=2016-04-14&metric=steps&current_goal=1&user_id=7&average=0",
	} {
		code, body := env.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusNotFound, code, target)
		assert.Equal(t, "User not found", body["error"], target)
	}
	assert.Empty(t, env.tasks.states)
}

func TestDetailAndEnvelopes(t *testing.T) {
	env := newTestEnv(t)
	env.service.pickDetailSubtype = func() pipeline.DetailSubtype { return pipeline.DetailAdvice }
	env.tasks.answer = `{"advice": "Go to bed 30 minutes earlier."}`

	code, body := env.do(t, http.MethodGet, "/chat/detail?date=2016-04-14&metric=sleep&user_id=1503960366", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "output")
	state := env.tasks.states[0]
	assert.Equal(t, pipeline.DetailAdvice, state.DetailSubtype)
	assert.Contains(t, state.Message, "Provide a relevant **advice** related to sleep")

	env.tasks.answer = `[{"question": "How did I sleep this week?"}]`
	code, body = env.do(t, http.MethodGet, "/chat/suggested_questions?date=2016-04-14&user_id=1503960366", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["questions"], 1)

	code, body = env.do(t, http.MethodGet, "/chat/recommendations?date=2016-04-14&user_id=1503960366", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "recommendations")
}

func TestParseStructured(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		ok     bool
	}{
		{"plain object", `{"a": 1}`, true},
		{"fenced", "```json\n{\"a\": 1}\n```", true},
		{"fenced without tag", "```\n[1, 2]\n```", true},
		{"empty object", `{}`, false},
		{"empty list", "```json\n[]\n```", false},
		{"prose", "Here you go: walk more.", false},
		{"blank", "  ", false},
		{"null", "null", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := parseStructured(tt.answer)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestDatasetEndpoints(t *testing.T) {
	env := newTestEnv(t)

	code, rows := env.doList(t, "/data/daily_data?user_id=1503960366")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, rows, 3)

	code, rows = env.doList(t, "/data/daily_data/by-date?date=2016-04-13&user_id=1503960366")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 10735, rows[0]["totalsteps"])

	code, body := env.do(t, http.MethodGet, "/data/memos?user_id=1503960366", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Dataset not found", body["error"])

	code, body = env.do(t, http.MethodGet, "/data/daily_data?user_id=42", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "No data found for user ID 42", body["message"])

	code, body = env.do(t, http.MethodGet, "/data/daily_data/by-date?date=2016-05-01&user_id=1503960366", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "No data found for user ID 1503960366 on date 2016-05-01", body["message"])

	code, _ = env.do(t, http.MethodGet, "/data/daily_data?user_id=abc", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestWeekBack(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodGet, "/data/daily_data/week-back?date=2016-04-14&user_id=1503960366", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{
		"2016-04-14", "2016-04-13", "2016-04-12", "2016-04-11", "2016-04-10", "2016-04-09", "2016-04-08",
	}, body["requested_week"])
	assert.Len(t, body["available_data"], 3)

	code, body = env.do(t, http.MethodGet, "/data/sleep_data/week-back?date=2016-01-01&user_id=1503960366", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{}, body["available_data"])

	code, body = env.do(t, http.MethodGet, "/data/daily_data/week-back?date=14-04-2016&user_id=1503960366", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, invalidDateMsg, body["error"])

	code, body = env.do(t, http.MethodGet, "/data/daily_data/sleep-week-back?date=2016-04-14&user_id=1503960366", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["available_sleep_data"], 3)
}

func TestHeartRateByDate(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodGet, "/data/heartrate/minute?bydate=2016-04-12&user_id=1503960366", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2016-04-12", body["date"])
	assert.Equal(t, []any{97.0, 102.0}, body["heart_rate_values"])

	code, body = env.do(t, http.MethodGet, "/data/heartrate/minute?bydate=2016-04-20&user_id=1503960366", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{}, body["heart_rate_values"])
}

func TestGoals(t *testing.T) {
	env := newTestEnv(t)

	code, goals := env.doList(t, "/data/goals/1503960366")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, goals, 2)

	code, body := env.do(t, http.MethodGet, "/data/goals/42", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "No goals found for user ID 42", body["message"])

	code, body = env.do(t, http.MethodGet, "/data/goals/1503960366/steps", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 10000, body["goal"])

	code, body = env.do(t, http.MethodGet, "/data/goals/1503960366/calories", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "No goal found for user ID 1503960366 and metric 'calories'", body["message"])

	code, body = env.do(t, http.MethodPost, "/data/goals/1503960366/steps?goal_value=12000", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Updated goal for user ID 1503960366 and metric 'steps' to 12000.", body["message"])

	code, body = env.do(t, http.MethodPost, "/data/goals/1503960366/calories?goal_value=2200", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Created new goal for user ID 1503960366 and metric 'calories' with value 2200.", body["message"])

	code, body = env.do(t, http.MethodGet, "/data/goals/1503960366/steps", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 12000, body["goal"])
}

func TestUpdateWeight(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/data/weight_log/update_weight/1503960366?weight=51.9&date=2016-04-13", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Weight log and daily data entry updated successfully.", body["message"])

	_, rows := env.doList(t, "/data/daily_data/by-date?date=2016-04-13&user_id=1503960366")
	require.Len(t, rows, 1)
	assert.InDelta(t, 51.9, rows[0]["weightkg"], 0.001)

	code, body = env.do(t, http.MethodPost, "/data/weight_log/update_weight/1503960366?weight=51.9&date=2016-04-14", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "No matching weight log entry found for the specified user and date.", body["detail"])

	code, body = env.do(t, http.MethodPost, "/data/weight_log/update_weight/1503960366?weight=51.9&date=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, invalidDateMsg, body["detail"])
}

func TestConversationListing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, body := env.do(t, http.MethodGet, "/data/conversation_subjects/"+testUserID, "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "No conversation subjects found for user ID "+testUserID, body["message"])

	code, body = env.do(t, http.MethodGet, "/data/conversation_messages/missing", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "No conversation messages found for conversation ID missing", body["message"])

	for i, id := range []string{"c1", "c2", "c3"} {
		at := testNow.Add(time.Duration(i) * time.Minute)
		require.NoError(t, env.log.AppendMessage(ctx, &store.ConversationMessage{
			ConversationID: id, UserID: testUserID, Role: store.RoleUser, Message: "question " + id, CreatedAt: at,
		}))
		if id != "c2" {
			require.NoError(t, env.log.AppendSubject(ctx, &store.ConversationSubject{
				ConversationID: id, UserID: testUserID, Title: "Title " + id, CreatedAt: at,
			}))
		}
	}

	code, body = env.do(t, http.MethodGet, "/data/conversation_subjects/"+testUserID+"?offset=0&limit=2", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 3, body["total"])
	assert.EqualValues(t, 2, body["limit"])
	conversations := body["conversations"].([]any)
	require.Len(t, conversations, 2)
	assert.Equal(t, "c3", conversations[0].(map[string]any)["conversation_id"])
	assert.Equal(t, "c2", conversations[1].(map[string]any)["conversation_id"])
	assert.Equal(t, "", conversations[1].(map[string]any)["subject"])

	code, _ = env.do(t, http.MethodGet, "/data/conversation_subjects/"+testUserID+"?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, messages := env.doList(t, "/data/conversation_messages/c1")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, messages, 1)
	assert.Equal(t, "question c1", messages[0]["message"])
}

func TestLogClick(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/data/log-click", `{"session_id":"abc-123","event_type":"tap"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Missing required fields", body["detail"])

	code, _ = env.do(t, http.MethodPost, "/data/log-click", `{"session_id":"../etc","event_type":"tap","component":"x"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = env.do(t, http.MethodPost, "/data/log-click", `{"session_id":"abc-123","event_type":"tap","component":"goal_card"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Click logged successfully", body["message"])

	data, err := os.ReadFile(filepath.Join(env.dir, "click_logs", "clicks_abc-123.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "timestamp,event_type,component", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], ",tap,goal_card"))
}
