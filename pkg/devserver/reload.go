package devserver

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// ReloadPath is where browsers connect for live reload.
const ReloadPath = "/_forge/reload"

type reloadKind string

const (
	reloadFull  reloadKind = "reload"
	reloadError reloadKind = "error"
	reloadClear reloadKind = "clear"
)

type reloadMessage struct {
	Type  reloadKind `json:"type"`
	Error string     `json:"error,omitempty"`
}

// reloadHub tracks connected browsers and pushes build notifications to them.
type reloadHub struct {
	mu       sync.RWMutex
	clients  map[*websocket.Conn]bool
	upgrader websocket.Upgrader
}

func newReloadHub() *reloadHub {
	return &reloadHub{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *reloadHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	// Browsers never send anything; reading only detects the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

func (h *reloadHub) reload()                { h.broadcast(reloadMessage{Type: reloadFull}) }
func (h *reloadHub) clear()                 { h.broadcast(reloadMessage{Type: reloadClear}) }
func (h *reloadHub) buildFailed(msg string) { h.broadcast(reloadMessage{Type: reloadError, Error: msg}) }

func (h *reloadHub) broadcast(msg reloadMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			h.mu.Lock()
			delete(h.clients, c)
			h.mu.Unlock()
			c.Close()
		}
	}
}

func (h *reloadHub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *reloadHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.Close()
		delete(h.clients, c)
	}
}

// reloadScript is injected before </body> of served HTML pages.
const reloadScript = `<script>
(function () {
  var delay = 1000;
  function connect() {
    var proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
    var ws = new WebSocket(proto + '//' + location.host + '` + ReloadPath + `');
    ws.onopen = function () { delay = 1000; hide(); };
    ws.onmessage = function (e) {
      var msg;
      try { msg = JSON.parse(e.data); } catch (err) { return; }
      if (msg.type === 'reload') location.reload();
      else if (msg.type === 'error') show(msg.error);
      else if (msg.type === 'clear') hide();
    };
    ws.onclose = function () {
      setTimeout(function () { delay = Math.min(delay * 2, 30000); connect(); }, delay);
    };
  }
  function show(text) {
    hide();
    var el = document.createElement('pre');
    el.id = 'forge-build-error';
    el.style.cssText = 'position:fixed;inset:0;margin:0;padding:24px;overflow:auto;z-index:2147483647;background:rgba(0,0,0,.9);color:#ff6b6b;font:13px monospace;white-space:pre-wrap;';
    el.textContent = text;
    document.body.appendChild(el);
  }
  function hide() {
    var el = document.getElementById('forge-build-error');
    if (el) el.remove();
  }
  connect();
})();
</script>`
