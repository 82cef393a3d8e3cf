// Package ui renders the converter's HTML: the single page shell and the
// fragments the page swaps in as a conversion progresses.
//
// Components are written directly against the templ runtime rather than
// generated from .templ sources, so the package builds with the plain Go
// toolchain. Every dynamic value goes through templ.EscapeString before it
// reaches the document.
package ui

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/nem2sql/internal/core"
	"github.com/JonMunkholm/nem2sql/internal/nem12"
)

// PageData carries everything the index page needs at render time.
type PageData struct {
	Title          string
	MaxUploadBytes int64
	History        []core.Summary
}

// Page renders the full converter page: file picker, progress area, results
// area, and the recent-conversion list, with the driving script inlined.
func Page(data PageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		title := data.Title
		if title == "" {
			title = "NEM12 to SQL"
		}

		if _, err := fmt.Fprintf(w, pageHead, templ.EscapeString(title)); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, pageBody, templ.EscapeString(title), data.MaxUploadBytes); err != nil {
			return err
		}

		if _, err := io.WriteString(w, `<section class="panel"><h2>Recent conversions</h2><div id="history">`); err != nil {
			return err
		}
		if err := HistoryList(data.History).Render(ctx, w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `</div></section>`); err != nil {
			return err
		}

		if _, err := io.WriteString(w, pageScript); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</body>\n</html>\n")
		return err
	})
}

// ReadingsTable renders emitted readings as table rows. Consumption is
// displayed with exactly three decimals; the generated SQL keeps the
// value's natural form.
func ReadingsTable(readings []nem12.MeterReading) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if len(readings) == 0 {
			_, err := io.WriteString(w, `<p class="quiet">No readings to display.</p>`)
			return err
		}

		if _, err := io.WriteString(w,
			`<table class="readings"><thead><tr><th>NMI</th><th>Timestamp</th><th>Consumption</th></tr></thead><tbody>`,
		); err != nil {
			return err
		}

		for _, r := range readings {
			if _, err := fmt.Fprintf(w,
				`<tr><td>%s</td><td>%s</td><td>%s</td></tr>`,
				templ.EscapeString(r.NMI),
				templ.EscapeString(r.Timestamp),
				strconv.FormatFloat(r.Consumption, 'f', 3, 64),
			); err != nil {
				return err
			}
		}

		_, err := io.WriteString(w, `</tbody></table>`)
		return err
	})
}

// HistoryList renders recent conversion summaries, newest first.
func HistoryList(entries []core.Summary) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if len(entries) == 0 {
			_, err := io.WriteString(w, `<p class="quiet">No conversions yet.</p>`)
			return err
		}

		if _, err := io.WriteString(w, `<ul class="history">`); err != nil {
			return err
		}

		for _, e := range entries {
			name := e.FileName
			if name == "" {
				name = e.ConversionID
			}

			var detail string
			if e.Outcome == "failed" {
				detail = templ.EscapeString(e.Error)
			} else {
				detail = fmt.Sprintf("%d statements from %d rows", e.Statements, e.RowsRead)
			}

			if _, err := fmt.Fprintf(w,
				`<li class="history-%s"><span class="file">%s</span><span class="outcome">%s</span><span class="detail">%s</span></li>`,
				templ.EscapeString(e.Outcome),
				templ.EscapeString(name),
				templ.EscapeString(e.Outcome),
				detail,
			); err != nil {
				return err
			}
		}

		_, err := io.WriteString(w, `</ul>`)
		return err
	})
}

// ErrorAlert renders an error fragment with the support code and suggested
// action.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<div class="alert" role="alert"><strong>%s</strong> <span>%s</span> <code>%s</code></div>`,
			templ.EscapeString(message),
			templ.EscapeString(action),
			templ.EscapeString(code),
		)
		return err
	})
}

const pageHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<style>
body { font-family: system-ui, sans-serif; margin: 0 auto; max-width: 960px; padding: 1.5rem; color: #1a202c; }
h1 { font-size: 1.4rem; }
h2 { font-size: 1.1rem; }
.panel { border: 1px solid #e2e8f0; border-radius: 8px; padding: 1rem 1.25rem; margin-bottom: 1.25rem; }
button { padding: 0.45rem 1rem; border-radius: 6px; border: 1px solid #2b6cb0; background: #2b6cb0; color: #fff; cursor: pointer; }
button:disabled { background: #a0aec0; border-color: #a0aec0; cursor: default; }
button.secondary { background: #fff; color: #2b6cb0; }
table.readings { border-collapse: collapse; width: 100%%; margin-top: 0.75rem; }
table.readings th, table.readings td { border: 1px solid #e2e8f0; padding: 0.3rem 0.6rem; text-align: left; font-variant-numeric: tabular-nums; }
table.readings th { background: #f7fafc; }
.quiet { color: #718096; }
.alert { background: #fff5f5; border: 1px solid #fc8181; border-radius: 6px; padding: 0.6rem 0.9rem; color: #c53030; }
.alert code { margin-left: 0.4rem; color: #822727; }
#status { margin: 0.6rem 0; color: #4a5568; }
#count { font-weight: 600; margin: 0.6rem 0; }
progress { width: 100%%; height: 0.6rem; }
ul.history { list-style: none; padding: 0; margin: 0; }
ul.history li { display: flex; gap: 0.75rem; padding: 0.3rem 0; border-bottom: 1px solid #edf2f7; }
ul.history .outcome { text-transform: uppercase; font-size: 0.75rem; align-self: center; }
li.history-complete .outcome { color: #2f855a; }
li.history-failed .outcome { color: #c53030; }
</style>
</head>
`

const pageBody = `<body>
<h1>%s</h1>
<section class="panel">
<input type="file" id="file" accept=".csv,text/csv">
<button id="convert" disabled>Convert to SQL</button>
<span class="quiet" id="limit" data-max-bytes="%d"></span>
<div id="status"></div>
<progress id="bar" max="100" value="0" hidden></progress>
</section>
<section class="panel" id="results" hidden>
<div id="count"></div>
<button id="copy" disabled>Copy SQL to clipboard</button>
<a id="download" class="secondary" hidden>Download .sql</a>
<div id="table"></div>
</section>
`

const pageScript = `<script>
(function () {
  var fileInput = document.getElementById('file');
  var convertBtn = document.getElementById('convert');
  var copyBtn = document.getElementById('copy');
  var download = document.getElementById('download');
  var status = document.getElementById('status');
  var bar = document.getElementById('bar');
  var results = document.getElementById('results');
  var count = document.getElementById('count');
  var table = document.getElementById('table');
  var conversionId = null;

  fileInput.addEventListener('change', function () {
    convertBtn.disabled = fileInput.files.length === 0;
    status.textContent = '';
  });

  convertBtn.addEventListener('click', function () {
    var file = fileInput.files[0];
    if (!file) return;

    convertBtn.disabled = true;
    copyBtn.disabled = true;
    results.hidden = true;
    table.innerHTML = '';
    bar.hidden = false;
    bar.value = 0;
    status.textContent = 'Processing ' + file.name + '...';

    var form = new FormData();
    form.append('file', file);

    fetch('/api/conversions', { method: 'POST', body: form })
      .then(function (resp) {
        return resp.json().then(function (body) {
          if (!resp.ok) throw new Error(body.message || body.error || 'conversion rejected');
          return body;
        });
      })
      .then(function (body) {
        conversionId = body.conversion_id;
        listen(conversionId);
      })
      .catch(function (err) {
        fail(err.message);
      });
  });

  function listen(id) {
    var source = new EventSource('/api/conversions/' + id + '/events');
    source.addEventListener('progress', function (ev) {
      var p = JSON.parse(ev.data);
      bar.value = parseInt(ev.lastEventId, 10) || 0;
      if (p.error) {
        source.close();
        fail(p.error);
        return;
      }
      status.textContent = 'Processing: ' + p.records + ' readings from ' + p.rowsRead + ' rows';
    });
    source.addEventListener('complete', function () {
      source.close();
      finish(id);
    });
    source.onerror = function () {
      source.close();
      finish(id);
    };
  }

  function finish(id) {
    fetch('/api/conversions/' + id)
      .then(function (resp) { return resp.json(); })
      .then(function (res) {
        bar.hidden = true;
        if (res.error) {
          fail(res.error);
          return;
        }
        status.textContent = '';
        convertBtn.disabled = false;
        if (res.records === 0) {
          results.hidden = false;
          count.textContent = 'No readings found in this file.';
          table.innerHTML = '';
          refreshHistory();
          return;
        }
        count.textContent = 'Generated ' + res.statements + ' SQL statements';
        copyBtn.disabled = false;
        download.hidden = false;
        download.href = '/api/conversions/' + id + '/sql?download=1';
        results.hidden = false;
        fetch('/api/conversions/' + id + '/readings')
          .then(function (resp) { return resp.text(); })
          .then(function (html) { table.innerHTML = html; });
        refreshHistory();
      });
  }

  function fail(message) {
    bar.hidden = true;
    results.hidden = true;
    convertBtn.disabled = false;
    status.textContent = message;
    refreshHistory();
  }

  copyBtn.addEventListener('click', function () {
    if (!conversionId) return;
    fetch('/api/conversions/' + conversionId + '/sql')
      .then(function (resp) { return resp.text(); })
      .then(function (sql) { return navigator.clipboard.writeText(sql); })
      .then(function () { status.textContent = 'Copied to clipboard.'; });
  });

  function refreshHistory() {
    fetch('/api/history', { headers: { 'HX-Request': 'true' } })
      .then(function (resp) { return resp.text(); })
      .then(function (html) { document.getElementById('history').innerHTML = html; });
  }
})();
</script>
`
