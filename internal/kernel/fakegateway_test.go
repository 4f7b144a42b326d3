package kernel

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type reply struct {
	msgType string
	content map[string]any
}

func streamReply(text string) reply {
	return reply{msgType: msgStream, content: map[string]any{"name": "stdout", "text": text}}
}

func resultReply(text, png string) reply {
	data := map[string]any{"text/plain": text}
	if png != "" {
		data["image/png"] = png
	}
	return reply{msgType: msgExecuteResult, content: map[string]any{"data": data}}
}

func displayReply(text, png string) reply {
	r := resultReply(text, png)
	r.msgType = msgDisplayData
	return r
}

func errorReply(traceback ...string) reply {
	return reply{msgType: msgError, content: map[string]any{"ename": "Error", "evalue": "", "traceback": traceback}}
}

// script decides the replies for one executed cell; a positive delay sends
// them asynchronously after that long.
type script func(code string) (frames []reply, delay time.Duration)

// fakeGateway emulates the REST and websocket surface of a kernel gateway.
type fakeGateway struct {
	t      *testing.T
	server *httptest.Server

	mu            sync.Mutex
	script        script
	failCreate    bool
	dropRequests  int
	foreignFrames bool
	created       int
	deleted       []string
	interrupted   []string
	channelDials  int
	codes         []string
	conns         []*websocket.Conn
}

func newFakeGateway(t *testing.T, s script) *fakeGateway {
	t.Helper()
	g := &fakeGateway{t: t, script: s}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/kernels", g.handleCreate)
	mux.HandleFunc("POST /api/kernels/{id}/interrupt", g.handleInterrupt)
	mux.HandleFunc("DELETE /api/kernels/{id}", g.handleDelete)
	mux.HandleFunc("GET /api/kernels/{id}/channels", g.handleChannels)
	g.server = httptest.NewServer(mux)
	t.Cleanup(func() {
		g.closeChannels()
		g.server.Close()
	})
	return g
}

func (g *fakeGateway) URL() string { return g.server.URL }

func (g *fakeGateway) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failCreate {
		http.Error(w, "kernel spec not ready", http.StatusServiceUnavailable)
		return
	}
	g.created++
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"id": fmt.Sprintf("k-%d", g.created), "name": body.Name})
}

func (g *fakeGateway) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.interrupted = append(g.interrupted, r.PathValue("id"))
	g.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (g *fakeGateway) handleDelete(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.deleted = append(g.deleted, r.PathValue("id"))
	g.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (g *fakeGateway) handleChannels(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	g.mu.Lock()
	g.channelDials++
	g.conns = append(g.conns, conn)
	g.mu.Unlock()

	var writeMu sync.Mutex
	send := func(parent string, rep reply) {
		frame := map[string]any{
			"header":        map[string]any{"msg_id": fmt.Sprintf("srv-%d", time.Now().UnixNano()), "msg_type": rep.msgType},
			"parent_header": map[string]any{"msg_id": parent},
			"msg_type":      rep.msgType,
			"content":       rep.content,
			"metadata":      map[string]any{},
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.WriteJSON(frame)
	}

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		var content executeContent
		_ = json.Unmarshal(msg.Content, &content)

		g.mu.Lock()
		g.codes = append(g.codes, content.Code)
		drop := false
		if g.dropRequests > 0 && !strings.HasPrefix(content.Code, "%") {
			g.dropRequests--
			drop = true
		}
		foreign := g.foreignFrames
		s := g.script
		g.mu.Unlock()

		if drop {
			_ = conn.Close()
			return
		}

		frames, delay := []reply(nil), time.Duration(0)
		if !strings.HasPrefix(content.Code, "%") && s != nil {
			frames, delay = s(content.Code)
		}
		parent := msg.Header.MsgID
		deliver := func() {
			if foreign {
				send("someone-else", streamReply("noise"))
			}
			for _, rep := range frames {
				send(parent, rep)
			}
			send(parent, reply{msgType: msgExecuteReply, content: map[string]any{"status": "ok"}})
		}
		if delay > 0 {
			go func() {
				time.Sleep(delay)
				deliver()
			}()
			continue
		}
		deliver()
	}
}

func (g *fakeGateway) closeChannels() {
	g.mu.Lock()
	conns := g.conns
	g.conns = nil
	g.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

func (g *fakeGateway) set(fn func(g *fakeGateway)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

type gatewayStats struct {
	created      int
	deleted      []string
	interrupted  []string
	channelDials int
	codes        []string
}

func (g *fakeGateway) stats() gatewayStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return gatewayStats{
		created:      g.created,
		deleted:      append([]string(nil), g.deleted...),
		interrupted:  append([]string(nil), g.interrupted...),
		channelDials: g.channelDials,
		codes:        append([]string(nil), g.codes...),
	}
}

func echoPrints(code string) ([]reply, time.Duration) {
	if strings.HasPrefix(code, "print(") {
		arg := strings.TrimSuffix(strings.TrimPrefix(code, "print("), ")")
		return []reply{streamReply(strings.Trim(arg, "'\"") + "\n")}, 0
	}
	return nil, 0
}
