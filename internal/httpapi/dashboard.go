package httpapi

import (
	"fmt"
	"net/http"
)

const dashboardHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>CanvasKit Overview</title>
  <style>
    :root {
      --ink: #1c2330;
      --paper: #f6f7fb;
      --card: #ffffff;
      --line: #d9dce6;
      --accent: #4463d8;
      --accent-2: #d8892f;
      --danger: #c2483f;
      --muted: #6d7486;
      --shadow: 0 18px 36px rgba(28, 35, 48, 0.14);
    }

    * { box-sizing: border-box; }

    body {
      margin: 0;
      font-family: "Space Grotesk", "Avenir Next", "Segoe UI", sans-serif;
      color: var(--ink);
      background:
        radial-gradient(1100px 500px at -5% -10%, rgba(216, 137, 47, 0.14), transparent 60%),
        radial-gradient(900px 500px at 110% -10%, rgba(68, 99, 216, 0.16), transparent 65%),
        linear-gradient(140deg, #f8f9fd 0%, #eef1f9 45%, #ffffff 100%);
      min-height: 100vh;
      padding: 20px;
    }

    .shell {
      max-width: 1240px;
      margin: 0 auto;
      display: grid;
      gap: 14px;
      animation: rise 420ms ease-out;
    }

    .bar {
      background: linear-gradient(140deg, #ffffff, #f4f6fc);
      border: 1px solid var(--line);
      border-radius: 18px;
      padding: 16px;
      box-shadow: var(--shadow);
    }

    h1 {
      margin: 0;
      font-size: clamp(1.2rem, 2vw, 1.75rem);
      letter-spacing: 0.02em;
    }

    .sub {
      margin-top: 6px;
      color: var(--muted);
      font-size: 0.9rem;
    }

    .controls {
      display: grid;
      gap: 10px;
      grid-template-columns: 1.4fr 0.6fr 0.6fr;
      margin-top: 12px;
    }

    .controls input {
      width: 100%;
      border-radius: 10px;
      border: 1px solid var(--line);
      background: #ffffff;
      color: var(--ink);
      padding: 10px 12px;
      font-size: 0.92rem;
      outline: none;
    }

    .controls input:focus {
      border-color: var(--accent);
      box-shadow: 0 0 0 3px rgba(68, 99, 216, 0.15);
    }

    button {
      border: 0;
      border-radius: 10px;
      padding: 10px 12px;
      font-family: inherit;
      font-weight: 700;
      letter-spacing: 0.01em;
      cursor: pointer;
      transition: transform 120ms ease, opacity 120ms ease, box-shadow 120ms ease;
    }

    button:hover { transform: translateY(-1px); }
    button:active { transform: translateY(0); }

    .btn-primary {
      background: linear-gradient(125deg, var(--accent), #5d7bea);
      color: #ffffff;
      box-shadow: 0 10px 18px rgba(68, 99, 216, 0.22);
    }

    .btn-secondary {
      background: linear-gradient(120deg, #eef0f7, #e6e9f3);
      color: var(--ink);
      border: 1px solid var(--line);
    }

    .pulse { animation: pulse 360ms ease; }

    .cards {
      display: grid;
      gap: 10px;
      grid-template-columns: repeat(5, minmax(120px, 1fr));
    }

    .card {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 14px;
      padding: 12px;
      min-height: 86px;
      box-shadow: 0 8px 18px rgba(28, 35, 48, 0.08);
      animation: stagger 340ms ease both;
    }

    .card:nth-child(2) { animation-delay: 40ms; }
    .card:nth-child(3) { animation-delay: 80ms; }
    .card:nth-child(4) { animation-delay: 120ms; }
    .card:nth-child(5) { animation-delay: 160ms; }

    .label {
      text-transform: uppercase;
      letter-spacing: 0.09em;
      font-size: 0.66rem;
      color: var(--muted);
    }

    .value {
      margin-top: 6px;
      font-size: 1.02rem;
      font-weight: 700;
      line-height: 1.2;
      word-break: break-word;
    }

    .grid {
      display: grid;
      gap: 12px;
      grid-template-columns: 0.8fr 1.4fr 1fr;
    }

    .panel {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 16px;
      padding: 12px;
      box-shadow: 0 10px 20px rgba(28, 35, 48, 0.08);
      min-height: 280px;
    }

    .panel h2 {
      margin: 0 0 10px;
      font-size: 0.92rem;
      letter-spacing: 0.06em;
      text-transform: uppercase;
    }

    .panel-note {
      margin: -4px 0 8px;
      color: var(--muted);
      font-size: 0.78rem;
    }

    .list {
      margin: 0;
      padding: 0;
      list-style: none;
      display: grid;
      gap: 6px;
      max-height: 380px;
      overflow: auto;
    }

    .list button {
      width: 100%;
      text-align: left;
      background: #fbfbfe;
      border: 1px solid #e1e4ee;
      border-left: 4px solid var(--accent);
      border-radius: 10px;
      padding: 8px 10px;
      font-size: 0.84rem;
      color: var(--ink);
      box-shadow: none;
      font-weight: 500;
    }

    .list button.active {
      background: #edf1fd;
      border-color: #b4c2f2;
    }

    .list .meta {
      display: block;
      margin-top: 2px;
      font-size: 0.72rem;
      color: var(--muted);
    }

    table {
      width: 100%;
      border-collapse: collapse;
      font-size: 0.82rem;
    }

    th, td {
      text-align: left;
      border-bottom: 1px solid #e6e8f1;
      padding: 7px 6px;
      vertical-align: top;
    }

    th {
      color: #5a6174;
      text-transform: uppercase;
      font-size: 0.69rem;
      letter-spacing: 0.08em;
    }

    .ok { color: #0f8f53; }
    .warn { color: #b66a21; }
    .err { color: var(--danger); }

    .tag {
      display: inline-block;
      border-radius: 6px;
      padding: 1px 6px;
      font-size: 0.72rem;
      background: #edf1fd;
      color: var(--accent);
    }

    .status-line {
      margin-top: 10px;
      font-size: 0.84rem;
      color: var(--muted);
      display: flex;
      flex-wrap: wrap;
      gap: 10px;
    }

    .mono {
      font-family: "IBM Plex Mono", "SFMono-Regular", Menlo, Consolas, monospace;
    }

    @keyframes rise {
      from { opacity: 0; transform: translateY(8px); }
      to { opacity: 1; transform: translateY(0); }
    }

    @keyframes pulse {
      0% { transform: scale(1); }
      50% { transform: scale(0.99); }
      100% { transform: scale(1); }
    }

    @keyframes stagger {
      from { opacity: 0; transform: translateY(6px); }
      to { opacity: 1; transform: translateY(0); }
    }

    @media (max-width: 1100px) {
      .controls { grid-template-columns: 1fr 1fr; }
      .cards { grid-template-columns: repeat(3, minmax(120px, 1fr)); }
      .grid { grid-template-columns: 1fr; }
    }

    @media (max-width: 640px) {
      body { padding: 12px; }
      .controls { grid-template-columns: 1fr; }
      .cards { grid-template-columns: repeat(2, minmax(120px, 1fr)); }
    }
  </style>
</head>
<body>
  <main class="shell">
    <section class="bar" id="topBar">
      <h1>CanvasKit Overview</h1>
      <div class="sub">Live view over canvases, their nodes and connections, and the active connection rule table.</div>
      <div class="controls">
        <input id="token" type="password" placeholder="Bearer token (canvas:read)" autocomplete="off" />
        <button id="refresh" class="btn-primary" type="button">Refresh Now</button>
        <button id="toggle" class="btn-secondary" type="button">Pause Auto</button>
      </div>
      <div class="status-line">
        <span>API: <span class="mono" id="apiBase"></span></span>
        <span>Last: <span id="lastUpdated">never</span></span>
        <span id="statusMessage">idle</span>
      </div>
    </section>

    <section class="cards">
      <article class="card"><div class="label">Canvases</div><div id="canvasCount" class="value">-</div></article>
      <article class="card"><div class="label">Nodes</div><div id="nodeCount" class="value">-</div></article>
      <article class="card"><div class="label">Connections</div><div id="connectionCount" class="value">-</div></article>
      <article class="card"><div class="label">Zoom</div><div id="zoomLevel" class="value mono">-</div></article>
      <article class="card"><div class="label">Grid</div><div id="gridInfo" class="value mono">-</div></article>
    </section>

    <section class="grid">
      <article class="panel">
        <h2>Canvases</h2>
        <div class="panel-note">selected: <span id="selectedCanvas" class="mono">-</span></div>
        <ul id="canvasRows" class="list"></ul>
      </article>

      <article class="panel">
        <h2>Nodes</h2>
        <table>
          <thead>
            <tr>
              <th>ID</th>
              <th>Name</th>
              <th>Type</th>
              <th>Position</th>
              <th>Stage</th>
              <th>Flags</th>
            </tr>
          </thead>
          <tbody id="nodeRows"></tbody>
        </table>
      </article>

      <article class="panel">
        <h2>Connections</h2>
        <table>
          <thead>
            <tr>
              <th>ID</th>
              <th>Source</th>
              <th>Target</th>
              <th>Style</th>
            </tr>
          </thead>
          <tbody id="connectionRows"></tbody>
        </table>
        <h2 style="margin-top:14px">Rule Table</h2>
        <table>
          <thead>
            <tr>
              <th>Source Type</th>
              <th>Allowed Targets</th>
            </tr>
          </thead>
          <tbody id="ruleRows"></tbody>
        </table>
      </article>
    </section>
  </main>

  <script>
    (function () {
      const store = {
        timer: null,
        intervalMs: 5000,
        paused: false,
        canvases: [],
        selectedCanvasId: 0,
      };

      const dom = {
        token: document.getElementById("token"),
        refresh: document.getElementById("refresh"),
        toggle: document.getElementById("toggle"),
        apiBase: document.getElementById("apiBase"),
        lastUpdated: document.getElementById("lastUpdated"),
        statusMessage: document.getElementById("statusMessage"),
        topBar: document.getElementById("topBar"),
        canvasCount: document.getElementById("canvasCount"),
        nodeCount: document.getElementById("nodeCount"),
        connectionCount: document.getElementById("connectionCount"),
        zoomLevel: document.getElementById("zoomLevel"),
        gridInfo: document.getElementById("gridInfo"),
        selectedCanvas: document.getElementById("selectedCanvas"),
        canvasRows: document.getElementById("canvasRows"),
        nodeRows: document.getElementById("nodeRows"),
        connectionRows: document.getElementById("connectionRows"),
        ruleRows: document.getElementById("ruleRows"),
      };

      function getBase() {
        return window.location.origin;
      }

      function getToken() {
        return dom.token.value.trim();
      }

      function cid(prefix) {
        return prefix + "_" + Date.now() + "_" + Math.random().toString(16).slice(2, 8);
      }

      async function request(path) {
        const token = getToken();
        if (!token) {
          throw new Error("missing token");
        }
        const response = await fetch(getBase() + path, {
          headers: {
            "Authorization": "Bearer " + token,
            "X-Correlation-Id": cid("dash"),
          },
        });
        const text = await response.text();
        let data;
        try {
          data = JSON.parse(text);
        } catch (err) {
          throw new Error("non-json response: " + text.slice(0, 220));
        }
        if (!response.ok) {
          const code = data.code ? String(data.code) : "error";
          const msg = data.message ? String(data.message) : response.statusText;
          throw new Error(response.status + " " + code + ": " + msg);
        }
        return data;
      }

      function setStatus(text, cls) {
        dom.statusMessage.textContent = text;
        dom.statusMessage.className = cls || "";
      }

      function renderCanvases(canvases) {
        dom.canvasRows.innerHTML = "";
        if (!Array.isArray(canvases) || canvases.length === 0) {
          const li = document.createElement("li");
          const btn = document.createElement("button");
          btn.type = "button";
          btn.disabled = true;
          btn.textContent = "No canvases";
          li.appendChild(btn);
          dom.canvasRows.appendChild(li);
          return;
        }
        canvases.forEach((canvas) => {
          const li = document.createElement("li");
          const btn = document.createElement("button");
          btn.type = "button";
          if (canvas.id === store.selectedCanvasId) {
            btn.classList.add("active");
          }
          const nameSpan = document.createElement("span");
          nameSpan.textContent = String(canvas.name || "(unnamed)");
          btn.appendChild(nameSpan);
          const metaSpan = document.createElement("span");
          metaSpan.className = "meta";
          metaSpan.textContent = "id=" + String(canvas.id) + " | zoom=" + String(canvas.zoom_level || 1);
          btn.appendChild(metaSpan);
          btn.addEventListener("click", function () {
            store.selectedCanvasId = canvas.id;
            refresh();
          });
          li.appendChild(btn);
          dom.canvasRows.appendChild(li);
        });
      }

      function nodeFlags(node) {
        const flags = [];
        if (node.is_locked) { flags.push("locked"); }
        if (node.is_collapsed) { flags.push("collapsed"); }
        return flags.join(", ") || "-";
      }

      function renderNodes(nodes) {
        dom.nodeRows.innerHTML = "";
        if (!Array.isArray(nodes) || nodes.length === 0) {
          const tr = document.createElement("tr");
          tr.innerHTML = "<td colspan=\"6\">No nodes on this canvas</td>";
          dom.nodeRows.appendChild(tr);
          return;
        }
        nodes.slice(0, 200).forEach((node) => {
          const tr = document.createElement("tr");
          const pos = Math.round(Number(node.position_x || 0)) + "," + Math.round(Number(node.position_y || 0));
          tr.innerHTML =
            "<td class=\"mono\">" + String(node.id) + "</td>" +
            "<td>" + String(node.name || "-") + "</td>" +
            "<td><span class=\"tag\">" + String(node.node_type || "-") + "</span></td>" +
            "<td class=\"mono\">" + pos + "</td>" +
            "<td>" + String(node.workflow_stage || "-") + "</td>" +
            "<td class=\"" + (node.is_locked ? "warn" : "ok") + "\">" + nodeFlags(node) + "</td>";
          dom.nodeRows.appendChild(tr);
        });
      }

      function renderConnections(connections) {
        dom.connectionRows.innerHTML = "";
        if (!Array.isArray(connections) || connections.length === 0) {
          const tr = document.createElement("tr");
          tr.innerHTML = "<td colspan=\"4\">No connections</td>";
          dom.connectionRows.appendChild(tr);
          return;
        }
        connections.slice(0, 200).forEach((conn) => {
          const tr = document.createElement("tr");
          tr.innerHTML =
            "<td class=\"mono\">" + String(conn.id) + "</td>" +
            "<td class=\"mono\">" + String(conn.source_node_id) + "</td>" +
            "<td class=\"mono\">" + String(conn.target_node_id) + "</td>" +
            "<td>" + String(conn.style || "solid") + "</td>";
          dom.connectionRows.appendChild(tr);
        });
      }

      function renderRules(rules) {
        dom.ruleRows.innerHTML = "";
        const sources = Object.keys(rules || {}).sort();
        if (sources.length === 0) {
          const tr = document.createElement("tr");
          tr.innerHTML = "<td colspan=\"2\">No restrictions</td>";
          dom.ruleRows.appendChild(tr);
          return;
        }
        sources.forEach((source) => {
          const tr = document.createElement("tr");
          const targets = Array.isArray(rules[source]) ? rules[source].join(", ") : "-";
          tr.innerHTML =
            "<td><span class=\"tag\">" + source + "</span></td>" +
            "<td>" + targets + "</td>";
          dom.ruleRows.appendChild(tr);
        });
      }

      async function refresh() {
        setStatus("refreshing...", "warn");
        dom.topBar.classList.remove("pulse");
        void dom.topBar.offsetWidth;
        dom.topBar.classList.add("pulse");

        try {
          const [canvases, rules] = await Promise.all([
            request("/v1/canvases"),
            request("/v1/admin/rules"),
          ]);
          store.canvases = Array.isArray(canvases) ? canvases : [];
          dom.canvasCount.textContent = String(store.canvases.length);
          renderRules(rules);

          const ids = store.canvases.map((canvas) => canvas.id);
          if (ids.length === 0) {
            store.selectedCanvasId = 0;
          } else if (ids.indexOf(store.selectedCanvasId) === -1) {
            store.selectedCanvasId = ids[0];
          }
          renderCanvases(store.canvases);

          if (store.selectedCanvasId) {
            const doc = await request("/v1/canvases/" + store.selectedCanvasId);
            const canvas = doc.canvas || {};
            dom.selectedCanvas.textContent = String(canvas.name || store.selectedCanvasId);
            dom.nodeCount.textContent = String((doc.nodes || []).length);
            dom.connectionCount.textContent = String((doc.connections || []).length);
            dom.zoomLevel.textContent = Number(canvas.zoom_level || 1).toFixed(2);
            dom.gridInfo.textContent = (canvas.grid_enabled ? "on" : "off") + " / " + String(canvas.grid_size || 0);
            renderNodes(doc.nodes || []);
            renderConnections(doc.connections || []);
          } else {
            dom.selectedCanvas.textContent = "-";
            dom.nodeCount.textContent = "0";
            dom.connectionCount.textContent = "0";
            dom.zoomLevel.textContent = "-";
            dom.gridInfo.textContent = "-";
            renderNodes([]);
            renderConnections([]);
          }

          dom.lastUpdated.textContent = new Date().toLocaleTimeString();
          setStatus("ok", "ok");
          window.localStorage.setItem("canvaskit_dashboard_token", getToken());
        } catch (err) {
          setStatus(String(err && err.message ? err.message : err), "err");
        }
      }

      function ensureTimer() {
        if (store.timer) {
          clearInterval(store.timer);
          store.timer = null;
        }
        if (!store.paused) {
          store.timer = setInterval(refresh, store.intervalMs);
        }
      }

      dom.refresh.addEventListener("click", refresh);
      dom.toggle.addEventListener("click", function () {
        store.paused = !store.paused;
        dom.toggle.textContent = store.paused ? "Resume Auto" : "Pause Auto";
        ensureTimer();
      });
      dom.token.addEventListener("change", refresh);

      const savedToken = window.localStorage.getItem("canvaskit_dashboard_token") || "";
      dom.token.value = savedToken;
      dom.apiBase.textContent = getBase();

      ensureTimer();
      if (savedToken) {
        refresh();
      } else {
        setStatus("enter token to start", "warn");
      }
    })();
  </script>
</body>
</html>`

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "not_found", "route not found", getCorrelationID(r))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, dashboardHTML)
}
