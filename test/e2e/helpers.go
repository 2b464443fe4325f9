//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/testutil"
)

const (
	apiToken      = "e2e-token"
	schemaBucket  = "kb-schemas"
	schemaVersion = "e2e"
	dimension     = 384
)

// E2ETestEnv holds the containers, binaries and running kbgated for one test.
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	QdrantC    *testutil.QdrantContainer
	S3C        *testutil.S3Container
	Embeddings *httptest.Server
	BinaryDir  string
	ServerURL  string
	server     *exec.Cmd
	HTTPClient *http.Client
}

// SetupE2EEnv starts Qdrant, an S3 store and a fake embedding endpoint, then
// builds kbctl and kbgated.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		QdrantC:    testutil.NewQdrantContainer(ctx, t),
		S3C:        testutil.NewS3Container(ctx, t),
		Embeddings: httptest.NewServer(http.HandlerFunc(fakeEmbeddings)),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	env.BuildBinaries()
	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.server != nil && e.server.Process != nil {
		_ = e.server.Process.Signal(os.Interrupt)
		_ = e.server.Wait()
	}
	if e.Embeddings != nil {
		e.Embeddings.Close()
	}
	if e.QdrantC != nil {
		_ = e.QdrantC.Terminate(e.Ctx)
	}
	if e.S3C != nil {
		_ = e.S3C.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// Env is the KB_* environment shared by kbctl and kbgated.
func (e *E2ETestEnv) Env() []string {
	return append(os.Environ(),
		"KB_STORE_BACKEND=qdrant",
		"KB_QDRANT_HOST="+e.QdrantC.Host,
		fmt.Sprintf("KB_QDRANT_PORT=%d", e.QdrantC.GRPCPort),
		"KB_EMBEDDING_BASE_URL="+e.Embeddings.URL+"/v1",
		"KB_EMBEDDING_API_KEY=unused",
		fmt.Sprintf("KB_EMBEDDING_DIMENSION=%d", dimension),
		"KB_SCHEMA_S3_ENDPOINT="+e.S3C.Endpoint(),
		"KB_SCHEMA_S3_ACCESS_KEY_ID="+testutil.S3AccessKey,
		"KB_SCHEMA_S3_SECRET_ACCESS_KEY="+testutil.S3SecretKey,
		"KB_SCHEMA_S3_BUCKET="+schemaBucket,
		"KB_SCHEMA_S3_VERSION="+schemaVersion,
		"KB_API_TOKEN="+apiToken,
		"KB_LOG_LEVEL=warn",
	)
}

func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "kbgate-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	for _, name := range []string{"kbctl", "kbgated"} {
		cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, name), "./cmd/"+name)
		cmd.Dir = "../.."
		if out, err := cmd.CombinedOutput(); err != nil {
			e.T.Fatalf("failed to build %s: %v\n%s", name, err, out)
		}
	}
}

// StartServer runs kbgated serve on a free port and waits for /health.
func (e *E2ETestEnv) StartServer() {
	port, err := getFreePort()
	if err != nil {
		e.T.Fatalf("failed to get free port: %v", err)
	}

	var logs bytes.Buffer
	cmd := exec.Command(filepath.Join(e.BinaryDir, "kbgated"), "serve", "--port", fmt.Sprint(port))
	cmd.Env = e.Env()
	cmd.Stdout = &logs
	cmd.Stderr = &logs
	if err := cmd.Start(); err != nil {
		e.T.Fatalf("failed to start kbgated: %v", err)
	}
	e.server = cmd
	e.ServerURL = fmt.Sprintf("http://127.0.0.1:%d", port)

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := e.HTTPClient.Get(e.ServerURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	e.T.Fatalf("kbgated did not become healthy:\n%s", logs.String())
}

// RunKbctl runs kbctl and returns its stdout and exit code.
func (e *E2ETestEnv) RunKbctl(stdin string, args ...string) (string, int) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "kbctl"), args...)
	cmd.Env = append(e.Env(), "KB_SERVER_URL="+e.ServerURL, "HOME="+e.T.TempDir())
	cmd.Stdin = strings.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return stdout.String(), 0
	case errors.As(err, &exitErr):
		if stderr.Len() > 0 {
			e.T.Logf("kbctl %v stderr: %s", args, stderr.String())
		}
		return stdout.String(), exitErr.ExitCode()
	default:
		e.T.Fatalf("failed to run kbctl: %v", err)
		return "", -1
	}
}

// APIResponse is the server's response envelope.
type APIResponse struct {
	Status int
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
}

func (e *E2ETestEnv) Do(method, path string, body any) *APIResponse {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.T.Fatalf("failed to encode body: %v", err)
		}
	}
	req, err := http.NewRequestWithContext(e.Ctx, method, e.ServerURL+path, &buf)
	if err != nil {
		e.T.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		e.T.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	out := &APIResponse{Status: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		e.T.Fatalf("failed to decode response: %v", err)
	}
	return out
}

// fakeEmbeddings serves an OpenAI-compatible /v1/embeddings endpoint with
// normalized bag-of-words vectors, so equal texts embed identically and
// overlapping texts score high.
func fakeEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	type item struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	}
	data := make([]item, len(req.Input))
	for i, text := range req.Input {
		data[i] = item{Object: "embedding", Embedding: bagOfWords(text), Index: i}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   data,
		"model":  req.Model,
		"usage":  map[string]int{"prompt_tokens": 0, "total_tokens": 0},
	})
}

func bagOfWords(text string) []float32 {
	vec := make([]float32, dimension)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%dimension]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func getFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
