package router_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deppfellow/user-registry/internal/errs"
	"github.com/deppfellow/user-registry/internal/handler"
	"github.com/deppfellow/user-registry/internal/model/user"
	"github.com/deppfellow/user-registry/internal/repository"
	"github.com/deppfellow/user-registry/internal/router"
	"github.com/deppfellow/user-registry/internal/server"
	"github.com/deppfellow/user-registry/internal/service"
	"github.com/deppfellow/user-registry/internal/testutil"
)

const (
	insertUser     = `INSERT INTO users (id, name, birth_date) VALUES ($1, $2, $3)`
	selectUserByID = `SELECT id, name, birth_date FROM users WHERE id = $1`
	selectUsers    = `SELECT id, name, birth_date FROM users`
)

var (
	userColumns = []string{"id", "name", "birth_date"}
	jan1st2000  = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
)

func newRouter(t *testing.T, configure ...func(s *server.Server)) (*echo.Echo, pgxmock.PgxConnIface) {
	t.Helper()

	srv, mock := testutil.NewServer(t)
	for _, fn := range configure {
		fn(srv)
	}

	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	repos := repository.NewRepositories(srv)
	services, err := service.NewServices(srv, repos)
	require.NoError(t, err)

	return router.NewRouter(srv, handler.NewHandlers(srv, services)), mock
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errs.HTTPError {
	t.Helper()

	var body errs.HTTPError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCreateUser(t *testing.T) {
	r, mock := newRouter(t)

	mock.ExpectBegin()
	mock.ExpectExec(insertUser).
		WithArgs(int64(12345678901), "Fulano", jan1st2000).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectQuery(selectUserByID).
		WithArgs(int64(12345678901)).
		WillReturnRows(pgxmock.NewRows(userColumns).AddRow(int64(12345678901), "Fulano", jan1st2000))

	rec := do(r, http.MethodPost, "/users", `{"id": 12345678901, "name": "Fulano", "birth_date": "01/01/2000"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id": 12345678901, "name": "Fulano", "birth_date": "01/01/2000"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateUserDuplicate(t *testing.T) {
	r, mock := newRouter(t)

	mock.ExpectBegin()
	mock.ExpectExec(insertUser).
		WithArgs(int64(12345678901), "Fulano", jan1st2000).
		WillReturnError(&pgconn.PgError{Code: "23505", TableName: "users", ConstraintName: "users_pkey"})
	mock.ExpectRollback()

	rec := do(r, http.MethodPost, "/users", `{"id": 12345678901, "name": "Fulano", "birth_date": "01/01/2000"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "USER_ALREADY_EXISTS", body.Code)
	assert.Equal(t, "a user with this ID already exists", body.Message)
	assert.True(t, body.Override)
}

func TestCreateUserRejectedValues(t *testing.T) {
	tests := map[string]struct {
		body  string
		field string
	}{
		"impossible date":   {`{"id": 1, "name": "Fulano", "birth_date": "31/02/2000"}`, "birth_date"},
		"wrong date format": {`{"id": 1, "name": "Fulano", "birth_date": "2000-01-01"}`, "birth_date"},
		"non-positive id":   {`{"id": -5, "name": "Fulano", "birth_date": "01/01/2000"}`, "id"},
		"blank name":        {`{"id": 1, "name": "", "birth_date": "01/01/2000"}`, "name"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			// No expectations: the database must not be touched.
			r, _ := newRouter(t)

			rec := do(r, http.MethodPost, "/users", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeError(t, rec)
			require.Len(t, body.Errors, 1)
			assert.Equal(t, tt.field, body.Errors[0].Field)
		})
	}
}

func TestCreateUserMalformedBodies(t *testing.T) {
	tests := map[string]struct {
		body  string
		field string
	}{
		"not json":      {`{"id": 1, "name": `, ""},
		"missing name":  {`{"id": 1, "birth_date": "01/01/2000"}`, "name"},
		"missing id":    {`{"name": "Fulano", "birth_date": "01/01/2000"}`, "id"},
		"string id":     {`{"id": "1", "name": "Fulano", "birth_date": "01/01/2000"}`, "id"},
		"numeric name":  {`{"id": 1, "name": 7, "birth_date": "01/01/2000"}`, "name"},
		"array payload": {`[1, 2, 3]`, ""},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			r, _ := newRouter(t)

			rec := do(r, http.MethodPost, "/users", tt.body)

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			if tt.field != "" {
				body := decodeError(t, rec)
				require.NotEmpty(t, body.Errors)
				assert.Equal(t, tt.field, body.Errors[0].Field)
			}
		})
	}
}

func TestCreateUserMatchesDecodeExternal(t *testing.T) {
	bodies := map[string]string{
		"string id":    `{"id": "1", "name": "Fulano", "birth_date": "01/01/2000"}`,
		"numeric name": `{"id": 1, "name": 7, "birth_date": "01/01/2000"}`,
		"not json":     `{"id": 1, "name": `,
		"array":        `[1, 2, 3]`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			r, _ := newRouter(t)

			_, decodeErr := user.DecodeExternal([]byte(body))
			var vErr *user.ValidationError
			require.True(t, errors.As(decodeErr, &vErr))

			rec := do(r, http.MethodPost, "/users", body)
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			httpErr := decodeError(t, rec)

			if vErr.Field == "body" {
				assert.Contains(t, httpErr.Message, vErr.Error())
				return
			}

			require.Len(t, httpErr.Errors, 1)
			assert.Equal(t, errs.FieldError{Field: vErr.Field, Error: vErr.Reason}, httpErr.Errors[0])
		})
	}
}

func TestCreateUserEmptyBody(t *testing.T) {
	r, _ := newRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/users", nil)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateUserStorageFailure(t *testing.T) {
	r, mock := newRouter(t)

	mock.ExpectBegin().WillReturnError(errors.New("conn busy"))

	rec := do(r, http.MethodPost, "/users", `{"id": 1, "name": "Fulano", "birth_date": "01/01/2000"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "conn busy")
}

func TestGetUser(t *testing.T) {
	r, mock := newRouter(t)

	mock.ExpectQuery(selectUserByID).
		WithArgs(int64(10987654321)).
		WillReturnRows(pgxmock.NewRows(userColumns).
			AddRow(int64(10987654321), "Ciclano", time.Date(2000, time.February, 2, 0, 0, 0, 0, time.UTC)))

	rec := do(r, http.MethodGet, "/users/10987654321", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id": 10987654321, "name": "Ciclano", "birth_date": "02/02/2000"}`, rec.Body.String())
}

func TestGetUserNotFound(t *testing.T) {
	r, mock := newRouter(t)

	mock.ExpectQuery(selectUserByID).
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows(userColumns))

	rec := do(r, http.MethodGet, "/users/42", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "USER_NOT_FOUND", body.Code)
	assert.Equal(t, "user not found", body.Message)
}

func TestGetUserNonIntegerID(t *testing.T) {
	r, _ := newRouter(t)

	rec := do(r, http.MethodGet, "/users/abc", "")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetUserStorageFailure(t *testing.T) {
	r, mock := newRouter(t)

	mock.ExpectQuery(selectUserByID).
		WithArgs(int64(7)).
		WillReturnError(errors.New("server closed the connection unexpectedly"))

	rec := do(r, http.MethodGet, "/users/7", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), decodeError(t, rec).Message)
}

func TestListUsers(t *testing.T) {
	r, mock := newRouter(t)

	mock.ExpectQuery(selectUsers).
		WillReturnRows(pgxmock.NewRows(userColumns).
			AddRow(int64(12345678901), "Fulano", jan1st2000).
			AddRow(int64(10987654321), "Ciclano", time.Date(2000, time.February, 2, 0, 0, 0, 0, time.UTC)))

	rec := do(r, http.MethodGet, "/users", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"id": 12345678901, "name": "Fulano", "birth_date": "01/01/2000"},
		{"id": 10987654321, "name": "Ciclano", "birth_date": "02/02/2000"}
	]`, rec.Body.String())
}

func TestListUsersEmpty(t *testing.T) {
	r, mock := newRouter(t)

	mock.ExpectQuery(selectUsers).WillReturnRows(pgxmock.NewRows(userColumns))

	rec := do(r, http.MethodGet, "/users", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestListUsersStorageFailure(t *testing.T) {
	r, mock := newRouter(t)

	mock.ExpectQuery(selectUsers).WillReturnError(errors.New("relation \"users\" does not exist"))

	rec := do(r, http.MethodGet, "/users", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "relation")
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		r, mock := newRouter(t)
		mock.ExpectPing()

		rec := do(r, http.MethodGet, "/status", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"healthy"`)
	})

	t.Run("database down", func(t *testing.T) {
		r, mock := newRouter(t)
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		rec := do(r, http.MethodGet, "/status", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"unhealthy"`)
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})
}

func TestDocsAndStatic(t *testing.T) {
	r, _ := newRouter(t)

	rec := do(r, http.MethodGet, "/docs", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/static/openapi.json")

	rec = do(r, http.MethodGet, "/static/openapi.json", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, json.Valid(rec.Body.Bytes()))
}

func TestUnknownRoute(t *testing.T) {
	r, _ := newRouter(t)

	rec := do(r, http.MethodGet, "/nope", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	r, _ := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/docs", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestRateLimit(t *testing.T) {
	r, _ := newRouter(t, func(s *server.Server) {
		s.Config.Server.RateLimit = 1
	})

	first := do(r, http.MethodGet, "/docs", "")
	assert.Equal(t, http.StatusOK, first.Code)

	second := do(r, http.MethodGet, "/docs", "")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "TOO_MANY_REQUESTS", decodeError(t, second).Code)
}

func TestRateLimitedRequestsAreLogged(t *testing.T) {
	var buf bytes.Buffer

	r, _ := newRouter(t, func(s *server.Server) {
		s.Config.Server.RateLimit = 1
		log := zerolog.New(&buf)
		s.Logger = &log
	})

	do(r, http.MethodGet, "/docs", "")
	rec := do(r, http.MethodGet, "/docs", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var accessLines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["message"] == "API" {
			accessLines = append(accessLines, entry)
		}
	}

	require.Len(t, accessLines, 2)
	assert.EqualValues(t, http.StatusOK, accessLines[0]["status"])
	assert.EqualValues(t, http.StatusTooManyRequests, accessLines[1]["status"])
	assert.Equal(t, "warn", accessLines[1]["level"])
}
