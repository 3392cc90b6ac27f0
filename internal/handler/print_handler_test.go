package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/verksted/admin-api/internal/handler"
	"github.com/verksted/admin-api/internal/models"
	"github.com/verksted/admin-api/internal/repository"
	"github.com/verksted/admin-api/internal/service"
)

const workerToken = "test-worker-token"

func newPrintApp(t *testing.T, jobs ...models.PrintJob) (*fiber.App, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Member{}, &models.PrintJob{}))
	require.NoError(t, db.Exec("DELETE FROM print_jobs").Error)
	for i := range jobs {
		require.NoError(t, db.Create(&jobs[i]).Error)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.Nop()

	jobRepo := repository.NewPrintJobRepository(db)
	memberRepo := repository.NewMemberRepository(db)
	prints := service.NewPrintService(jobRepo, memberRepo, nil, nil, service.PrintConfig{}, validate, logger)

	h := handler.NewPrintHandler(prints, workerToken, logger)

	app := fiber.New()
	h.Register(app.Group("/print-jobs"))
	h.RegisterWorker(app.Group("/internal/print-jobs"))

	return app, db
}

func postStatus(t *testing.T, app *fiber.App, jobID, token string, payload any) (*http.Response, map[string]any) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/internal/print-jobs/"+jobID+"/status", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Worker-Token", token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestPrintStatusWebhookRequiresToken(t *testing.T) {
	app, _ := newPrintApp(t, models.PrintJob{ID: "job-1", Ref: "m-1", RefInvoker: "admin-1"})

	resp, _ := postStatus(t, app, "job-1", "", fiber.Map{"completed": true})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = postStatus(t, app, "job-1", "wrong", fiber.Map{"completed": true})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// near misses: a prefix of the token or the token with a trailing byte
	resp, _ = postStatus(t, app, "job-1", workerToken[:len(workerToken)-1], fiber.Map{"completed": true})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = postStatus(t, app, "job-1", workerToken+"x", fiber.Map{"completed": true})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestPrintStatusWebhookCompletes(t *testing.T) {
	app, db := newPrintApp(t, models.PrintJob{ID: "job-1", Ref: "m-1", RefInvoker: "admin-1"})

	resp, body := postStatus(t, app, "job-1", workerToken, fiber.Map{"completed": true})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["ok"])

	var job models.PrintJob
	require.NoError(t, db.First(&job, "id = ?", "job-1").Error)
	require.True(t, job.Completed)
}

func TestPrintStatusWebhookTerminalConflict(t *testing.T) {
	app, _ := newPrintApp(t, models.PrintJob{ID: "job-1", Ref: "m-1", RefInvoker: "admin-1", Completed: true})

	resp, body := postStatus(t, app, "job-1", workerToken, fiber.Map{"error_msg": "papirstopp"})
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Equal(t, false, body["ok"])
}

func TestPrintStatusWebhookRejectsEmptyUpdate(t *testing.T) {
	app, _ := newPrintApp(t, models.PrintJob{ID: "job-1", Ref: "m-1", RefInvoker: "admin-1"})

	resp, _ := postStatus(t, app, "job-1", workerToken, fiber.Map{})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestPrintStatusWebhookUnknownJob(t *testing.T) {
	app, _ := newPrintApp(t)

	resp, _ := postStatus(t, app, "ghost", workerToken, fiber.Map{"completed": true})
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGetPrintJobEndpoint(t *testing.T) {
	app, _ := newPrintApp(t, models.PrintJob{ID: "job-1", Ref: "m-1", RefInvoker: "admin-1"})

	req := httptest.NewRequest(http.MethodGet, "/print-jobs/job-1", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	data := body["data"].(map[string]any)
	require.Equal(t, "job-1", data["id"])
	require.Equal(t, false, data["completed"])
}
