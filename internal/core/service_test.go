package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

const sampleCSV = `100,NEM12,200506081149,UNITEDDP,NEMMCO
200,NEM1201009,E1E2,1,E1,N1,01009,kWh,30,20050610
300,20050301,0.461,0.810,0.568,A
900
`

// failingReader yields its data, then fails with err instead of EOF.
type failingReader struct {
	data []byte
	err  error
	pos  int
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, r.err
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

// gatedReader blocks the first Read until release is closed, then serves
// its data. Used to hold a conversion open while the test pokes at it.
type gatedReader struct {
	release <-chan struct{}
	started bool
	data    []byte
	pos     int
}

func (r *gatedReader) Read(p []byte) (int, error) {
	if !r.started {
		<-r.release
		r.started = true
	}
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func waitResult(t *testing.T, svc *Service, id string) *Result {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := svc.Result(ctx, id)
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if res == nil {
		t.Fatal("Result() returned nil result")
	}
	return res
}

func TestService_Convert(t *testing.T) {
	svc := NewService(Config{})

	id, err := svc.Start(context.Background(), Request{
		FileName: "sample.csv",
		Size:     int64(len(sampleCSV)),
		Source:   strings.NewReader(sampleCSV),
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if id == "" {
		t.Fatal("Start() returned empty id")
	}

	res := waitResult(t, svc, id)

	if res.ConversionID != id {
		t.Errorf("ConversionID = %q, want %q", res.ConversionID, id)
	}
	if res.Error != "" {
		t.Errorf("unexpected error message: %q", res.Error)
	}
	if res.RowsRead != 4 {
		t.Errorf("RowsRead = %d, want 4", res.RowsRead)
	}
	if len(res.Records) != 3 {
		t.Fatalf("len(Records) = %d, want 3", len(res.Records))
	}
	if len(res.Statements) != 3 {
		t.Fatalf("len(Statements) = %d, want 3", len(res.Statements))
	}

	first := res.Records[0]
	if first.NMI != "NEM1201009" {
		t.Errorf("Records[0].NMI = %q, want NEM1201009", first.NMI)
	}
	if first.Timestamp != "2005-03-01 00:00:00" {
		t.Errorf("Records[0].Timestamp = %q, want 2005-03-01 00:00:00", first.Timestamp)
	}
	if first.Consumption != 0.461 {
		t.Errorf("Records[0].Consumption = %v, want 0.461", first.Consumption)
	}

	want := `INSERT INTO meter_readings (nmi, "timestamp", consumption) VALUES ('NEM1201009', '2005-03-01 00:00:00', 0.461);`
	if res.Statements[0] != want {
		t.Errorf("Statements[0] =\n%s\nwant\n%s", res.Statements[0], want)
	}

	p, err := svc.Progress(id)
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if p.Phase != PhaseComplete {
		t.Errorf("Phase = %q, want %q", p.Phase, PhaseComplete)
	}
	if p.Percent() != 100 {
		t.Errorf("Percent() = %d, want 100", p.Percent())
	}
}

func TestService_Convert_AnomaliesOnly(t *testing.T) {
	// Interval values that never parse and a block that never opens
	// complete successfully with zero records.
	input := "200,NMI789,,,,,,,15\n300,20230303,invalid,data\n"

	svc := NewService(Config{})
	id, err := svc.Start(context.Background(), Request{
		FileName: "anomalies.csv",
		Source:   strings.NewReader(input),
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	res := waitResult(t, svc, id)

	if res.Error != "" {
		t.Errorf("unexpected error message: %q", res.Error)
	}
	if len(res.Records) != 0 {
		t.Errorf("len(Records) = %d, want 0", len(res.Records))
	}
	if len(res.Statements) != 0 {
		t.Errorf("len(Statements) = %d, want 0", len(res.Statements))
	}
	if res.RowsRead != 2 {
		t.Errorf("RowsRead = %d, want 2", res.RowsRead)
	}
}

func TestService_Convert_SourceFailure(t *testing.T) {
	src := &failingReader{
		data: []byte("200,NMI456,,,,,,,60\n300,20230202,15.5\n"),
		err:  errors.New("Test parsing error"),
	}

	svc := NewService(Config{})
	id, err := svc.Start(context.Background(), Request{
		FileName: "broken.csv",
		Source:   src,
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	res := waitResult(t, svc, id)

	if res.Error != "Error parsing CSV file: Test parsing error" {
		t.Errorf("Error = %q, want %q", res.Error, "Error parsing CSV file: Test parsing error")
	}

	// Emission is append-only: the reading parsed before the failure stays.
	if len(res.Records) != 1 {
		t.Fatalf("len(Records) = %d, want 1", len(res.Records))
	}
	if res.Records[0].NMI != "NMI456" || res.Records[0].Consumption != 15.5 {
		t.Errorf("Records[0] = %+v", res.Records[0])
	}
	if res.Statements != nil {
		t.Errorf("Statements = %v, want nil on failure", res.Statements)
	}

	p, err := svc.Progress(id)
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if p.Phase != PhaseFailed {
		t.Errorf("Phase = %q, want %q", p.Phase, PhaseFailed)
	}
}

func TestService_Start_NoSource(t *testing.T) {
	svc := NewService(Config{})

	_, err := svc.Start(context.Background(), Request{FileName: "x.csv"})
	if !errors.Is(err, ErrNoSource) {
		t.Errorf("Start() error = %v, want ErrNoSource", err)
	}
}

func TestService_Start_ContextCanceled(t *testing.T) {
	svc := NewService(Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Start(ctx, Request{Source: strings.NewReader(sampleCSV)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Start() error = %v, want context.Canceled", err)
	}
}

func TestService_Start_RejectsWhenFull(t *testing.T) {
	release := make(chan struct{})
	svc := NewService(Config{MaxConcurrent: 1})

	_, err := svc.Start(context.Background(), Request{
		FileName: "slow.csv",
		Source:   &gatedReader{release: release, data: []byte(sampleCSV)},
	})
	if err != nil {
		t.Fatalf("first Start() error = %v", err)
	}

	_, err = svc.Start(context.Background(), Request{
		FileName: "rejected.csv",
		Source:   strings.NewReader(sampleCSV),
	})
	if !errors.Is(err, ErrTooManyConversions) {
		t.Errorf("second Start() error = %v, want ErrTooManyConversions", err)
	}

	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.WaitForDrain(ctx); err != nil {
		t.Fatalf("WaitForDrain() error = %v", err)
	}
}

func TestService_SubscribeProgress(t *testing.T) {
	svc := NewService(Config{})

	id, err := svc.Start(context.Background(), Request{
		FileName: "sample.csv",
		Size:     int64(len(sampleCSV)),
		Source:   strings.NewReader(sampleCSV),
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ch, err := svc.SubscribeProgress(id)
	if err != nil {
		t.Fatalf("SubscribeProgress() error = %v", err)
	}

	deadline := time.After(5 * time.Second)
	var last Progress
	got := 0
	for {
		select {
		case p, ok := <-ch:
			if !ok {
				if got == 0 {
					t.Fatal("channel closed without any update")
				}
				if !last.Phase.Terminal() {
					t.Errorf("last phase = %q, want terminal", last.Phase)
				}
				return
			}
			last = p
			got++
			if p.ConversionID != id {
				t.Errorf("update for %q, want %q", p.ConversionID, id)
			}
			if p.Phase.Terminal() {
				// Subscribers may attach after the listener close; the
				// primed terminal update is the end of the stream either way.
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for progress updates")
		}
	}
}

func TestService_SubscribeProgress_AfterFinish(t *testing.T) {
	svc := NewService(Config{})

	id, err := svc.Start(context.Background(), Request{
		Source: strings.NewReader(sampleCSV),
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitResult(t, svc, id)

	ch, err := svc.SubscribeProgress(id)
	if err != nil {
		t.Fatalf("SubscribeProgress() error = %v", err)
	}

	select {
	case p := <-ch:
		if !p.Phase.Terminal() {
			t.Errorf("phase = %q, want terminal", p.Phase)
		}
	case <-time.After(time.Second):
		t.Fatal("no terminal progress delivered to late subscriber")
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel after terminal update")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed for late subscriber")
	}
}

func TestService_Progress_NotFound(t *testing.T) {
	svc := NewService(Config{})

	_, err := svc.Progress("00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Progress() error = %v, want ErrNotFound", err)
	}
	if err == nil || !strings.Contains(err.Error(), "conversion not found") {
		t.Errorf("error %v should name the missing conversion", err)
	}
}

func TestService_Result_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	svc := NewService(Config{MaxConcurrent: 1})

	id, err := svc.Start(context.Background(), Request{
		Source: &gatedReader{release: release, data: []byte(sampleCSV)},
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = svc.Result(ctx, id)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Result() error = %v, want context.DeadlineExceeded", err)
	}

	close(release)
	waitResult(t, svc, id)
}

func TestService_Script(t *testing.T) {
	svc := NewService(Config{})

	id, err := svc.Start(context.Background(), Request{
		Source: strings.NewReader(sampleCSV),
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	script, err := svc.Script(context.Background(), id)
	if err != nil {
		t.Fatalf("Script() error = %v", err)
	}

	lines := strings.Split(script, "\n")
	if len(lines) != 3 {
		t.Fatalf("script has %d lines, want 3:\n%s", len(lines), script)
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "INSERT INTO meter_readings") {
			t.Errorf("unexpected line: %q", line)
		}
		if !strings.HasSuffix(line, ";") {
			t.Errorf("line not terminated: %q", line)
		}
	}
}

func TestService_Readings(t *testing.T) {
	svc := NewService(Config{})

	id, err := svc.Start(context.Background(), Request{
		Source: strings.NewReader(sampleCSV),
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitResult(t, svc, id)

	readings, err := svc.Readings(id)
	if err != nil {
		t.Fatalf("Readings() error = %v", err)
	}
	if len(readings) != 3 {
		t.Fatalf("len(readings) = %d, want 3", len(readings))
	}

	wantTimes := []string{
		"2005-03-01 00:00:00",
		"2005-03-01 00:30:00",
		"2005-03-01 01:00:00",
	}
	for i, r := range readings {
		if r.Timestamp != wantTimes[i] {
			t.Errorf("readings[%d].Timestamp = %q, want %q", i, r.Timestamp, wantTimes[i])
		}
	}
}

func TestService_History(t *testing.T) {
	svc := NewService(Config{})

	id, err := svc.Start(context.Background(), Request{
		FileName: "sample.csv",
		Source:   strings.NewReader(sampleCSV),
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitResult(t, svc, id)

	hist := svc.History()
	if len(hist) != 1 {
		t.Fatalf("len(History()) = %d, want 1", len(hist))
	}

	h := hist[0]
	if h.ConversionID != id {
		t.Errorf("ConversionID = %q, want %q", h.ConversionID, id)
	}
	if h.Outcome != "complete" {
		t.Errorf("Outcome = %q, want complete", h.Outcome)
	}
	if h.Statements != 3 {
		t.Errorf("Statements = %d, want 3", h.Statements)
	}
	if h.FinishedAt.IsZero() {
		t.Error("FinishedAt is zero")
	}
}

func TestService_History_FailedOutcome(t *testing.T) {
	svc := NewService(Config{})

	id, err := svc.Start(context.Background(), Request{
		Source: &failingReader{err: errors.New("boom")},
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitResult(t, svc, id)

	hist := svc.History()
	if len(hist) != 1 {
		t.Fatalf("len(History()) = %d, want 1", len(hist))
	}
	if hist[0].Outcome != "failed" {
		t.Errorf("Outcome = %q, want failed", hist[0].Outcome)
	}
	if hist[0].Error != "Error parsing CSV file: boom" {
		t.Errorf("Error = %q", hist[0].Error)
	}
}

func TestService_History_Bounded(t *testing.T) {
	svc := NewService(Config{HistorySize: 2})

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := svc.Start(context.Background(), Request{
			Source: strings.NewReader(sampleCSV),
		})
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		waitResult(t, svc, id)
		ids = append(ids, id)
	}

	hist := svc.History()
	if len(hist) != 2 {
		t.Fatalf("len(History()) = %d, want 2", len(hist))
	}
	// Newest first; the oldest conversion fell off the ring.
	if hist[0].ConversionID != ids[2] {
		t.Errorf("History()[0] = %q, want %q", hist[0].ConversionID, ids[2])
	}
	if hist[1].ConversionID != ids[1] {
		t.Errorf("History()[1] = %q, want %q", hist[1].ConversionID, ids[1])
	}
}

func TestService_FlushFinished(t *testing.T) {
	svc := NewService(Config{})

	id, err := svc.Start(context.Background(), Request{
		Source: strings.NewReader(sampleCSV),
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitResult(t, svc, id)

	if n := svc.FlushFinished(); n != 1 {
		t.Errorf("FlushFinished() = %d, want 1", n)
	}

	if _, err := svc.Progress(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Progress() after flush error = %v, want ErrNotFound", err)
	}

	// The summary outlives the registry entry.
	if len(svc.History()) != 1 {
		t.Errorf("len(History()) = %d, want 1", len(svc.History()))
	}
}

func TestService_SweepExpired(t *testing.T) {
	svc := NewService(Config{})

	id, err := svc.Start(context.Background(), Request{
		Source: strings.NewReader(sampleCSV),
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitResult(t, svc, id)

	time.Sleep(10 * time.Millisecond)
	svc.sweepExpired(time.Nanosecond)

	if n := svc.jobs.count(); n != 0 {
		t.Errorf("registry count = %d after sweep, want 0", n)
	}
	if _, err := svc.Progress(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Progress() after sweep error = %v, want ErrNotFound", err)
	}
}

func TestService_SweepKeepsRunning(t *testing.T) {
	release := make(chan struct{})
	svc := NewService(Config{MaxConcurrent: 1})

	id, err := svc.Start(context.Background(), Request{
		Source: &gatedReader{release: release, data: []byte(sampleCSV)},
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	svc.sweepExpired(time.Nanosecond)
	if n := svc.jobs.count(); n != 1 {
		t.Errorf("registry count = %d, running conversion must survive sweeps", n)
	}

	close(release)
	waitResult(t, svc, id)
}

func TestService_Queue(t *testing.T) {
	release := make(chan struct{})
	svc := NewService(Config{MaxConcurrent: 2})

	id, err := svc.Start(context.Background(), Request{
		Source: &gatedReader{release: release, data: []byte(sampleCSV)},
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	status := svc.Queue()
	if status.Active != 1 {
		t.Errorf("Active = %d, want 1", status.Active)
	}
	if status.Available != 1 {
		t.Errorf("Available = %d, want 1", status.Available)
	}
	if status.MaxConcurrent != 2 {
		t.Errorf("MaxConcurrent = %d, want 2", status.MaxConcurrent)
	}

	close(release)
	waitResult(t, svc, id)
}

func TestService_ConcurrentConversions(t *testing.T) {
	svc := NewService(Config{MaxConcurrent: 4})

	ids := make([]string, 4)
	for i := range ids {
		id, err := svc.Start(context.Background(), Request{
			Source: strings.NewReader(sampleCSV),
		})
		if err != nil {
			t.Fatalf("Start() #%d error = %v", i, err)
		}
		ids[i] = id
	}

	for _, id := range ids {
		res := waitResult(t, svc, id)
		if len(res.Statements) != 3 {
			t.Errorf("conversion %s: len(Statements) = %d, want 3", id, len(res.Statements))
		}
	}
}
