package web

// Single page dashboard: holdings, value chart, tax summary and the ledger table.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>cointax</title>
  <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
  <style>
    body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; background:#0f1419; color:#e6e6e6; margin:0; padding:24px; }
    h1 { font-size:22px; margin:0 0 16px; }
    .grid { display:grid; grid-template-columns: repeat(auto-fit, minmax(320px, 1fr)); gap:16px; }
    .card { background:#1a2029; border-radius:10px; padding:16px; }
    .muted { color:#8a94a6; font-size:13px; }
    .warn { color:#f0b429; }
    .up { color:#3ecf8e; } .down { color:#ef5b5b; }
    table { width:100%; border-collapse:collapse; font-size:14px; }
    th, td { text-align:left; padding:6px 8px; border-bottom:1px solid #2a3240; }
    a { color:#6cb6ff; }
    button, select, input { background:#242c38; color:#e6e6e6; border:1px solid #344052; border-radius:6px; padding:4px 8px; }
  </style>
</head>
<body>
  <h1>Portfolio <span id="total"></span> <span id="change" class="muted"></span></h1>
  <div id="degraded" class="warn"></div>
  <div class="grid">
    <div class="card">
      <table id="holdings"><thead><tr><th>Asset</th><th>Amount</th><th>Price</th><th>Value</th><th>Share</th></tr></thead><tbody></tbody></table>
    </div>
    <div class="card">
      <div>
        <select id="window">
          <option>ALL</option><option>3Y</option><option>1Y</option><option>3M</option><option selected>1M</option><option>5D</option>
        </select>
        <button id="refresh">Refresh</button>
      </div>
      <canvas id="chart" height="160"></canvas>
    </div>
    <div class="card">
      <div>Year <input id="year" size="5" /> Income <input id="income" size="9" /> <button id="tax-go">Estimate</button></div>
      <table id="tax"><tbody></tbody></table>
      <div class="muted"><a href="/api/lots.csv">gain lots csv</a></div>
    </div>
  </div>
  <div class="card" style="margin-top:16px">
    <div>
      <select id="asset"><option value="all">All</option><option>BTC</option><option>ETH</option><option>LTC</option></select>
      <select id="type"><option value="all">All</option><option>IN</option><option>OUT</option></select>
      <select id="order"><option value="desc">Newest first</option><option value="asc">Oldest first</option></select>
      <button id="prev">&lt;</button> <span id="page"></span> <button id="next">&gt;</button>
      <a id="csv" href="/api/ledger.csv">transactions.csv</a>
    </div>
    <table id="ledger"><thead><tr><th>Crypto</th><th>Date</th><th>IN/OUT</th><th>Amount</th><th>$USD Value on TX Date</th><th>TXID</th></tr></thead><tbody></tbody></table>
  </div>
  <div class="card" style="margin-top:16px">
    <div class="muted">Runs</div>
    <table id="runs"><tbody></tbody></table>
  </div>
<script>
const usd = v => v === null || v === undefined ? 'n/a' : Number(v).toLocaleString('en-US', {style:'currency', currency:'USD'});
let page = 1, pages = 1, chart;

async function getJSON(url, opts) {
  const res = await fetch(url, opts);
  const body = await res.json();
  if (!res.ok) throw new Error(body.error || res.statusText);
  return body;
}

function renderReport(r) {
  document.getElementById('total').textContent = usd(r.total);
  const ch = document.getElementById('change');
  if (r.change_24h) {
    const pct = Number(r.change_24h.percent).toFixed(2);
    ch.textContent = '24h ' + usd(r.change_24h.abs) + ' (' + pct + '%)';
    ch.className = Number(r.change_24h.abs) >= 0 ? 'up' : 'down';
  }
  const notes = [];
  if (r.incomplete) notes.push('incomplete: ' + Object.keys(r.incomplete).join(', '));
  if (r.price_errors) notes.push('no prices: ' + Object.keys(r.price_errors).join(', '));
  if (r.unvalued) notes.push('no price today, left out of total: ' + Object.keys(r.unvalued).join(', '));
  if (r.unpriced) notes.push(r.unpriced + ' unpriced transactions');
  if (r.issues && r.issues.length) notes.push(r.issues.length + ' skipped records');
  document.getElementById('degraded').textContent = notes.join(' · ');
  const body = document.querySelector('#holdings tbody');
  body.innerHTML = '';
  r.holdings.forEach(h => {
    const tr = document.createElement('tr');
    tr.innerHTML = '<td>' + h.asset + (h.incomplete ? ' <span class="warn">!</span>' : '') + '</td><td>' + h.quantity +
      '</td><td>' + usd(h.price) + '</td><td>' + usd(h.fiat) + '</td><td>' + (Number(h.share) * 100).toFixed(1) + '%</td>';
    body.appendChild(tr);
  });
}

async function loadSeries() {
  const w = document.getElementById('window').value;
  const s = await getJSON('/api/series?window=' + w);
  const labels = s.points.map(p => new Date(p.at).toLocaleDateString());
  const data = s.points.map(p => Number(p.total));
  if (!chart) {
    chart = new Chart(document.getElementById('chart'), {type:'line', data:{labels, datasets:[{label:'USD', data, borderColor:'#6cb6ff'}]}});
  } else {
    chart.data.labels = labels;
    chart.data.datasets[0].data = data;
    chart.update();
  }
}

async function loadTax() {
  const y = document.getElementById('year').value, inc = document.getElementById('income').value;
  const q = new URLSearchParams();
  if (y) q.set('year', y);
  if (inc) q.set('income', inc);
  const t = await getJSON('/api/tax?' + q.toString());
  document.getElementById('year').value = t.totals.year;
  const rows = [
    ['Short-term gains', usd(t.totals.short)], ['Long-term gains', usd(t.totals.long)],
    ['Short-term rate', (Number(t.estimate.short_rate) * 100) + '%'], ['Long-term rate', (Number(t.estimate.long_rate) * 100) + '%'],
    ['Short-term tax', usd(t.estimate.short_tax)], ['Long-term tax', usd(t.estimate.long_tax)],
  ];
  if (t.totals.unpriced) rows.push(['Unpriced lots', t.totals.unpriced]);
  if (t.totals.unmatched) rows.push(['Unmatched sells', JSON.stringify(t.totals.unmatched)]);
  document.querySelector('#tax tbody').innerHTML = rows.map(r => '<tr><td>' + r[0] + '</td><td>' + r[1] + '</td></tr>').join('');
}

function ledgerQuery() {
  const q = new URLSearchParams();
  q.set('asset', document.getElementById('asset').value);
  q.set('type', document.getElementById('type').value);
  q.set('order', document.getElementById('order').value);
  return q;
}

async function loadLedger() {
  const q = ledgerQuery();
  document.getElementById('csv').href = '/api/ledger.csv?' + q.toString();
  q.set('page', page);
  const l = await getJSON('/api/ledger?' + q.toString());
  pages = l.pages;
  document.getElementById('page').textContent = l.page + ' / ' + l.pages;
  document.querySelector('#ledger tbody').innerHTML = l.rows.map(e =>
    '<tr><td>' + e.asset + '</td><td>' + new Date(e.time).toLocaleDateString() + '</td><td>' + e.direction + '</td><td>' +
    e.quantity + '</td><td>' + usd(e.fiat_value) + '</td><td><a target="_blank" href="' + e.explorer + '">' +
    e.external_id.slice(0, 12) + '…</a></td></tr>').join('');
}

function connectSSE() {
  const es = new EventSource('/reports/stream');
  const body = document.querySelector('#runs tbody');
  es.addEventListener('run', ev => {
    const s = JSON.parse(ev.data);
    const tr = document.createElement('tr');
    tr.innerHTML = '<td>' + new Date(s.at).toLocaleString() + '</td><td>' + usd(s.total) + '</td><td>' + s.entries +
      ' tx</td><td>' + (s.degraded ? '<span class="warn">degraded</span>' : 'ok') + '</td>';
    body.prepend(tr);
  });
}

async function loadLastRun() {
  try {
    const rec = await getJSON('/api/runs/latest');
    document.getElementById('total').textContent = usd(rec.summary.total);
    document.getElementById('change').textContent = 'as of ' + new Date(rec.summary.at).toLocaleString();
  } catch (e) {
    // nothing recorded yet
  }
}

async function loadAll() {
  await loadLastRun();
  try {
    renderReport(await getJSON('/api/report'));
    await Promise.all([loadSeries(), loadTax(), loadLedger()]);
  } catch (e) {
    document.getElementById('degraded').textContent = e.message;
  }
}

document.getElementById('window').onchange = loadSeries;
document.getElementById('tax-go').onclick = loadTax;
['asset', 'type', 'order'].forEach(id => document.getElementById(id).onchange = () => { page = 1; loadLedger(); });
document.getElementById('prev').onclick = () => { if (page > 1) { page--; loadLedger(); } };
document.getElementById('next').onclick = () => { if (page < pages) { page++; loadLedger(); } };
document.getElementById('refresh').onclick = async () => {
  renderReport(await getJSON('/api/refresh', {method:'POST'}));
  await Promise.all([loadSeries(), loadTax(), loadLedger()]);
};

loadAll();
connectSSE();
</script>
</body>
</html>
`
