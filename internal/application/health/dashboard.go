package health

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
)

// RenderDashboardHTML returns the HTML for GET /. The page polls /health/json.
func RenderDashboardHTML(health CollectResult) string {
	b, _ := json.Marshal(health)
	jsonStr := string(b)
	// Escape for embedding in JS template literal: \ ` $
	jsonStr = strings.ReplaceAll(jsonStr, "\\", "\\\\")
	jsonStr = strings.ReplaceAll(jsonStr, "`", "\\`")
	jsonStr = strings.ReplaceAll(jsonStr, "$", "\\$")

	headline := "All Systems Operational"
	switch health.Status {
	case "degraded":
		headline = "Running Degraded"
	case "issue":
		headline = "System Issues Detected"
	}

	lastSweep := "never"
	if s := health.LastSweep; s != nil {
		lastSweep = fmt.Sprintf("%s · %d jobs expired · %d campaigns expired · %d finalized",
			s.RanAt.Format("2006-01-02 15:04:05 MST"), s.JobsExpired, s.CampaignsExpired, s.CampaignsFinalized)
	}

	lastReq := "-"
	if m, ok := health.Traffic.LastRequest.(map[string]interface{}); ok {
		method, _ := m["method"].(string)
		path, _ := m["path"].(string)
		lastReq = method + " " + path
	}

	dep := func(name string) string {
		d := health.Dependencies[name]
		cls := "ok"
		if d.Status != "connected" {
			cls = "err"
		}
		ping := "?"
		if p, ok := d.PingMs.(*int64); ok && p != nil {
			ping = fmt.Sprint(*p)
		}
		return `<span id="pill-` + name + `" class="pill ` + cls + `">` + html.EscapeString(d.Status) + ` · <span id="ping-` + name + `">` + ping + `</span> ms</span>`
	}

	return `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>BoneBoard · Engine Status</title>
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <style>
    :root { --bone: #F4EFE6; --ink: #1F1A17; --accent: #C2410C; --muted: #78716c; }
    body { background: var(--bone); color: var(--ink); font-family: system-ui, sans-serif; margin: 0; display: flex; justify-content: center; padding: 40px 20px; }
    .container { width: 100%; max-width: 960px; }
    h1 { font-size: 44px; font-weight: 900; letter-spacing: -2px; margin: 0 0 8px; }
    .subtext { color: var(--muted); font-weight: 600; margin-bottom: 28px; }
    .card { background: white; border-radius: 20px; box-shadow: 0 20px 60px -20px rgba(0,0,0,0.15); display: grid; grid-template-columns: repeat(3, 1fr); overflow: hidden; }
    .col { padding: 32px; border-right: 1px solid rgba(0,0,0,0.05); }
    .col:last-child { border-right: none; }
    .label { text-transform: uppercase; font-size: 11px; font-weight: 900; letter-spacing: 2px; color: var(--muted); margin-bottom: 18px; }
    .big { font-size: 36px; font-weight: 900; margin-bottom: 10px; }
    .row { display: flex; justify-content: space-between; padding: 6px 0; font-size: 14px; font-weight: 700; }
    .pill { padding: 4px 10px; border-radius: 8px; font-size: 11px; font-weight: 900; }
    .ok { background: rgba(22, 163, 74, 0.1); color: #15803d; }
    .err { background: rgba(239, 68, 68, 0.1); color: #b91c1c; }
    .footer { margin-top: 20px; font-family: monospace; font-size: 13px; color: var(--muted); display: flex; justify-content: space-between; }
    @media (max-width: 800px) { .card { grid-template-columns: 1fr; } .col { border-right: none; } }
  </style>
</head>
<body>
  <div class="container">
    <h1 id="headline">` + headline + `</h1>
    <p class="subtext">Listing lifecycle, funding ledger and sweep status.</p>
    <div class="card">
      <div class="col">
        <div class="label">Traffic</div>
        <div class="big" id="total-req">` + fmt.Sprint(health.Traffic.TotalRequests) + `</div>
        <div class="row"><span>Successful</span><span id="success-count">` + fmt.Sprint(health.Traffic.SuccessCount) + `</span></div>
        <div class="row"><span>Failed</span><span id="failed-count">` + fmt.Sprint(health.Traffic.FailedCount) + `</span></div>
        <div class="row"><span>Success Rate</span><span id="success-rate">` + health.Traffic.SuccessRate + `%</span></div>
        <div class="row"><span>Avg Latency</span><span id="avg-time">` + fmt.Sprint(health.Traffic.AvgResponseTime) + `ms</span></div>
      </div>
      <div class="col">
        <div class="label">Runtime</div>
        <div class="big" id="uptime">` + fmt.Sprint(health.Runtime.UptimeSeconds) + `s</div>
        <div class="row"><span>Heap Used</span><span id="mem-heap">` + fmt.Sprint(health.Runtime.Memory.HeapUsed) + ` MB</span></div>
        <div class="row"><span>Goroutines</span><span id="goroutines">` + fmt.Sprint(health.Runtime.Goroutines) + `</span></div>
        <div class="row"><span>Platform</span><span style="font-size:11px">` + health.Runtime.Platform + ` ` + health.Runtime.GoVersion + `</span></div>
      </div>
      <div class="col">
        <div class="label">Dependencies</div>
        <div class="row"><span>Database</span>` + dep("database") + `</div>
        <div class="row"><span>Redis</span>` + dep("redis") + `</div>
        <div class="label" style="margin-top:24px">Last Sweep</div>
        <div class="row"><span id="last-sweep" style="font-size:12px">` + html.EscapeString(lastSweep) + `</span></div>
      </div>
    </div>
    <div class="footer">
      <span>LAST INBOUND <span id="last-req">` + html.EscapeString(lastReq) + `</span></span>
      <span><a href="/health/json">/health/json</a> · <a href="/health/errors">/health/errors</a></span>
    </div>
  </div>
  <script>
    const initial = JSON.parse(` + "`" + jsonStr + "`" + `);
    const updateUI = (d) => {
      document.getElementById('total-req').innerText = d.traffic.totalRequests;
      document.getElementById('success-count').innerText = d.traffic.successCount;
      document.getElementById('failed-count').innerText = d.traffic.failedCount;
      document.getElementById('success-rate').innerText = d.traffic.successRate + '%';
      document.getElementById('avg-time').innerText = d.traffic.avgResponseTime + 'ms';
      document.getElementById('uptime').innerText = d.runtime.uptimeSeconds + 's';
      document.getElementById('mem-heap').innerText = d.runtime.memory.heapUsed + ' MB';
      document.getElementById('goroutines').innerText = d.runtime.goroutines;
      ['database', 'redis'].forEach((name) => {
        const dep = d.dependencies[name];
        document.getElementById('pill-' + name).className = 'pill ' + (dep.status === 'connected' ? 'ok' : 'err');
        document.getElementById('ping-' + name).innerText = dep.pingMs != null ? dep.pingMs : '?';
      });
      if (d.lastSweep) {
        const s = d.lastSweep;
        document.getElementById('last-sweep').innerText = new Date(s.ran_at).toLocaleString() + ' · ' + s.jobs_expired + ' jobs expired · ' + s.campaigns_expired + ' campaigns expired · ' + s.campaigns_finalized + ' finalized';
      }
    };
    updateUI(initial);
    setInterval(async () => { try { const r = await fetch('/health/json'); updateUI(await r.json()); } catch (e) {} }, 15000);
  </script>
</body>
</html>`
}
