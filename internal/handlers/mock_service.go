package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/models"
	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/service"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockCover struct {
	openErr     error
	closeErr    error
	stopErr     error
	positionErr error
	tiltErr     error
	knownErr    error

	openCalled   int
	closeCalled  int
	stopCalled   int
	lastPosition int
	lastTilt     int
	lastKnown    service.KnownPositionParams
}

func (m *mockCover) Open(ctx context.Context) error {
	m.openCalled++
	return m.openErr
}
func (m *mockCover) Close(ctx context.Context) error {
	m.closeCalled++
	return m.closeErr
}
func (m *mockCover) Stop(ctx context.Context) error {
	m.stopCalled++
	return m.stopErr
}
func (m *mockCover) SetPosition(ctx context.Context, target int) error {
	m.lastPosition = target
	return m.positionErr
}
func (m *mockCover) SetTilt(ctx context.Context, target int) error {
	m.lastTilt = target
	return m.tiltErr
}
func (m *mockCover) SetKnownPosition(ctx context.Context, p service.KnownPositionParams) error {
	m.lastKnown = p
	return m.knownErr
}

type mockCalibration struct {
	startErr   error
	stopErr    error
	lastStart  service.CalibrationParams
	lastCancel bool
	stopCalled int
}

func (m *mockCalibration) StartCalibration(ctx context.Context, p service.CalibrationParams) error {
	m.lastStart = p
	return m.startErr
}
func (m *mockCalibration) StopCalibration(ctx context.Context, cancel bool) error {
	m.stopCalled++
	m.lastCancel = cancel
	return m.stopErr
}

type mockMonitoring struct {
	state models.CoverState
	err   error
}

func (m *mockMonitoring) GetState(ctx context.Context) (models.CoverState, error) {
	return m.state, m.err
}

type mockEventLog struct {
	resp     []models.CoverEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.CoverEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
