package httpapi

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgen/internal/streaming"
	"github.com/rendis/flowgen/pkg/schema"
)

func TestEventsSnapshot(t *testing.T) {
	s := newTestServer(t)
	projectID, _ := buildCounter(t, s)

	status, body := do(t, s, http.MethodGet, "/api/projects/"+projectID+"/events?limit=1", nil)
	require.Equal(t, http.StatusOK, status)

	text := string(body)
	require.True(t, strings.HasPrefix(text, "event: "+streaming.EventSnapshot+"\ndata: "), text)
	payload := strings.TrimSuffix(strings.TrimPrefix(text, "event: "+streaming.EventSnapshot+"\ndata: "), "\n\n")
	ev := decode[streaming.Event](t, []byte(payload))
	assert.Equal(t, projectID, ev.ProjectID)
	assert.Equal(t, float64(1), ev.Payload.(map[string]any)["diagrams"])

	hub := s.deps.Workspace.Events().(*streaming.MemoryHub)
	assert.Zero(t, hub.Subscribers(), "closed streams unsubscribe")
}

func TestEventsUnknownProject(t *testing.T) {
	s := newTestServer(t)

	status, body := do(t, s, http.MethodGet, "/api/projects/missing/events", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, schema.ErrCodeNotFound, errorCode(t, body))
}
