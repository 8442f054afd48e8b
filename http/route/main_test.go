package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tnqbao/gau-ml-service/config"
	"github.com/tnqbao/gau-ml-service/entity"
	"github.com/tnqbao/gau-ml-service/http/controller"
	"github.com/tnqbao/gau-ml-service/infra"
	"github.com/tnqbao/gau-ml-service/repository"
)

const testSecret = "test-secret"

type providerReply struct {
	status int
	body   string
}

// fakeProvider stands in for the compute provider, answering by request path.
type fakeProvider struct {
	mu      sync.Mutex
	replies map[string]providerReply
	paths   []string
	bodies  []string
}

func (p *fakeProvider) reply(path string, status int, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies[path] = providerReply{status: status, body: body}
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	p.mu.Lock()
	p.paths = append(p.paths, r.Method+" "+r.URL.Path)
	p.bodies = append(p.bodies, string(body))
	reply, ok := p.replies[r.URL.Path]
	p.mu.Unlock()

	if !ok {
		http.Error(w, `{"error":"unexpected path"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.status)
	_, _ = io.WriteString(w, reply.body)
}

func (p *fakeProvider) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.paths...)
}

type fakeDatasets struct {
	ownerID  uint
	fileName string
	content  string
}

func (d *fakeDatasets) UploadDataset(_ context.Context, ownerID uint, fileName string, reader io.Reader, size int64, _ string) (*infra.DatasetObject, error) {
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	d.ownerID, d.fileName, d.content = ownerID, fileName, string(raw)
	return &infra.DatasetObject{
		ObjectKey: fmt.Sprintf("owners/%d/x.csv", ownerID),
		URL:       "https://storage.example.com/datasets/owners/1/x.csv?sig=1",
		Size:      size,
		ExpiresAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

type testEnv struct {
	router   *gin.Engine
	db       *gorm.DB
	ctrl     *controller.Controller
	repo     *repository.Repository
	provider *fakeProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	repo := repository.NewRepository(db)

	provider := &fakeProvider{replies: map[string]providerReply{}}
	srv := httptest.NewServer(provider)
	t.Cleanup(srv.Close)

	cfg := &config.Config{EnvConfig: &config.EnvConfig{}}
	cfg.EnvConfig.JWT.SecretKey = testSecret
	cfg.EnvConfig.JWT.Algorithm = "HS256"

	inf := &infra.Infra{
		Logger: infra.NewNopLogger(),
		ComputeService: infra.NewComputeService(map[infra.EndpointKind]string{
			infra.EndpointTrain:   srv.URL + "/train",
			infra.EndpointPredict: srv.URL + "/predict",
			infra.EndpointDelete:  srv.URL + "/delete",
		}, "rp-key", srv.Client()),
	}

	ctrl := controller.NewController(cfg, inf, repo)
	return &testEnv{router: SetupRouter(ctrl), db: db, ctrl: ctrl, repo: repo, provider: provider}
}

func token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func aliceToken(t *testing.T) string {
	return token(t, jwt.MapClaims{"user_id": 1, "email": "alice@example.com"})
}

func (e *testEnv) do(t *testing.T, method, path, tok string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) seed(t *testing.T, m entity.ModelRecord) *entity.ModelRecord {
	t.Helper()
	if m.LabelCount == 0 {
		m.LabelCount = 2
	}
	if err := e.db.Create(&m).Error; err != nil {
		t.Fatal(err)
	}
	return &m
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}
