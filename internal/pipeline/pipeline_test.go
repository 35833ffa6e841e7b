// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/recap-engine/internal/gateway"
	"github.com/pdiddy/recap-engine/internal/stream"
	"github.com/pdiddy/recap-engine/pkg/types"
)

const (
	sourcesJSON = `{"sources":[{"app":"Spotify","year":"2025"},{"app":"Kindle","year":"2025"},{"app":"Strava","year":"2025"}]}`

	extractionJSON = `{"extractedData":[
		{"app":"Spotify","metrics":[{"label":"Minutes listened","value":"52,340","type":"duration"},{"label":"Top genre","value":"Indie","type":"other"}]},
		{"app":"Kindle","metrics":[{"label":"Books finished","value":"31","type":"count"}]},
		{"app":"Strava","metrics":[{"label":"Distance","value":"1,204 km","type":"amount"},{"label":"Top percent","value":"5%","type":"percent"}]}]}`

	insightsJSON = `{"highlights":[
		{"icon":"headphones","label":"Minutes listened","value":"52,340","subtext":"About 36 days of music"},
		{"icon":"book","label":"Books finished","value":"31"},
		{"icon":"map","label":"Distance run","value":"1,204 km"},
		{"icon":"award","label":"Top runners","value":"5%"},
		{"icon":"music","label":"Top genre","value":"Indie"},
		{"icon":"star","label":"Apps tracked","value":"3"}]}`

	personalityJSON = `{"type":"infj","title":"The Quiet Marathoner","traits":["curious","steady","reflective","driven"],
		"explanation":"Long solo activities and heavy reading.",
		"confidence":{
			"EI":{"letter":"i","confidence":0.8,"reason":"Mostly solo activities"},
			"NS":{"letter":"N","confidence":0.6,"reason":"Broad reading"},
			"TF":{"letter":"F","confidence":0.55,"reason":"Music-heavy"},
			"JP":{"letter":"J","confidence":0.7,"reason":"Regular runs"}}}`

	narrativeJSON = `{"summary":"2025 was the year you ran 1,204 km and finished 31 books."}`
)

func fixtures() map[string]string {
	return map[string]string{
		"identify_sources":  sourcesJSON,
		"extract_data":      extractionJSON,
		"generate_insights": insightsJSON,
		"infer_personality": personalityJSON,
		"write_summary":     narrativeJSON,
	}
}

// scriptedInvoker answers each tool with a fixed JSON document or error.
type scriptedInvoker struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []gateway.Call
}

func newScripted() *scriptedInvoker {
	return &scriptedInvoker{responses: fixtures(), errs: map[string]error{}}
}

func (s *scriptedInvoker) Invoke(ctx context.Context, call gateway.Call) (json.RawMessage, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	err := s.errs[call.Tool.Name]
	resp, ok := s.responses[call.Tool.Name]
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no response scripted for %s", call.Tool.Name)
	}
	return json.RawMessage(resp), nil
}

func (s *scriptedInvoker) tools() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.calls))
	for i, c := range s.calls {
		names[i] = c.Tool.Name
	}
	return names
}

// collector records emitted messages. When failAt > 0 the failAt-th emit
// and every later one fail.
type collector struct {
	msgs   []stream.Message
	failAt int
	emits  int
}

func (c *collector) emit(_ context.Context, msg stream.Message) error {
	c.emits++
	if c.failAt > 0 && c.emits >= c.failAt {
		return errors.New("client went away")
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

// trace renders the stage events as "1p 1c 2p ..." followed by the
// terminal kind.
func (c *collector) trace(t *testing.T) string {
	t.Helper()
	var parts []string
	for _, m := range c.msgs {
		if m.Event != stream.EventStage {
			parts = append(parts, m.Event)
			continue
		}
		var ev types.StageEvent
		require.NoError(t, json.Unmarshal(m.Data, &ev))
		parts = append(parts, fmt.Sprintf("%d%c", ev.Stage, ev.Status[0]))
	}
	return strings.Join(parts, " ")
}

func (c *collector) stageEvent(t *testing.T, stage int, status types.StageStatus) types.StageEvent {
	t.Helper()
	for _, m := range c.msgs {
		if m.Event != stream.EventStage {
			continue
		}
		var ev types.StageEvent
		require.NoError(t, json.Unmarshal(m.Data, &ev))
		if ev.Stage == stage && ev.Status == status {
			return ev
		}
	}
	t.Fatalf("no %s event for stage %d", status, stage)
	return types.StageEvent{}
}

func (c *collector) last() stream.Message {
	return c.msgs[len(c.msgs)-1]
}

func newOrchestrator(inv gateway.Invoker, cfg types.PipelineConfig) *Orchestrator {
	if cfg.ReportYear == 0 {
		cfg.ReportYear = 2025
	}
	return New(inv, cfg, WithLogger(log.New(io.Discard)))
}

func threeImages() []string {
	return []string{"data:image/png;base64,AAAA", "data:image/png;base64,BBBB", "data:image/jpeg;base64,CCCC"}
}

const fullTrace = "1p 1c 2p 2c 3p 3c 4p 4c 5p 5c complete"

func TestRun_EndToEnd(t *testing.T) {
	inv := newScripted()
	col := &collector{}
	o := newOrchestrator(inv, types.PipelineConfig{})

	rc, err := o.Run(context.Background(), types.AnalysisRequest{
		Images: threeImages(), Style: types.StyleMinimal, Mode: types.ModeNormal,
	}, col.emit)
	require.NoError(t, err)

	assert.Equal(t, fullTrace, col.trace(t))
	assert.Equal(t, []string{"identify_sources", "extract_data", "generate_insights", "infer_personality", "write_summary"}, inv.tools())

	var stage1 sourcesPayload
	require.NoError(t, json.Unmarshal(col.stageEvent(t, 1, types.StatusCompleted).Data, &stage1))
	assert.Equal(t, 3, stage1.Count)
	assert.Len(t, stage1.Sources, 3)
	assert.NotEmpty(t, stage1.Summary)

	for n := 1; n <= 5; n++ {
		assert.Empty(t, col.stageEvent(t, n, types.StatusProcessing).Data, "processing events carry no data")
		assert.Equal(t, StageName(n), col.stageEvent(t, n, types.StatusCompleted).Name)
	}

	var done stream.CompletePayload
	require.NoError(t, json.Unmarshal(col.last().Data, &done))
	assert.True(t, done.Success)
	assert.Equal(t, rc.ID(), done.RunID)

	var rep types.AggregatedReport
	require.NoError(t, json.Unmarshal(done.Report, &rep))
	assert.Equal(t, len(stage1.Sources), rep.TotalApps)
	assert.LessOrEqual(t, len(rep.Highlights), types.MaxHighlights)
	assert.Equal(t, "INFJ", rep.Personality.Type)
	assert.Equal(t, "I", rep.Confidence[types.DimensionEI].Letter)
	assert.Equal(t, []string{"Spotify", "Kindle", "Strava"}, rep.Apps)

	require.NotNil(t, rc.Report())
	assert.Equal(t, rep.Summary, rc.Report().Summary)
}

// toolServer answers chat completions by tool name, failing the named
// tool with status.
func toolServer(t *testing.T, failTool string, status int, calls *[]string) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	answers := fixtures()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ToolChoice struct {
				Function struct {
					Name string `json:"name"`
				} `json:"function"`
			} `json:"tool_choice"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		name := req.ToolChoice.Function.Name

		mu.Lock()
		*calls = append(*calls, name)
		mu.Unlock()

		if name == failTool {
			http.Error(w, `{"error":"slow down"}`, status)
			return
		}
		args, _ := json.Marshal(answers[name])
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"tool_calls":[{"type":"function","function":{"name":%q,"arguments":%s}}]}}]}`, name, args)
	}))
}

func TestRun_RateLimitedAtStage3(t *testing.T) {
	var calls []string
	srv := toolServer(t, "generate_insights", http.StatusTooManyRequests, &calls)
	defer srv.Close()

	client, err := gateway.New(types.GatewayConfig{URL: srv.URL, APIKey: "test-key"}, gateway.WithLogger(log.New(io.Discard)))
	require.NoError(t, err)

	col := &collector{}
	_, err = newOrchestrator(client, types.PipelineConfig{}).Run(context.Background(),
		types.AnalysisRequest{Images: threeImages(), Style: types.StylePlayful}, col.emit)

	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrRateLimited)
	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 3, serr.Stage)

	assert.Equal(t, "1p 1c 2p 2c 3p error", col.trace(t))
	assert.Equal(t, []string{"identify_sources", "extract_data", "generate_insights"}, calls, "no retry and no later stages")

	var payload stream.ErrorPayload
	require.NoError(t, json.Unmarshal(col.last().Data, &payload))
	assert.Contains(t, payload.Error, "rate limiting")
}

func TestRun_FailureKinds(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"quota", &gateway.Error{Kind: gateway.ErrQuotaExhausted, Status: 402}, "quota is exhausted"},
		{"unavailable", &gateway.Error{Kind: gateway.ErrUpstreamUnavailable, Status: 503}, "unavailable"},
		{"timeout", &gateway.Error{Kind: gateway.ErrTimeout}, "timed out"},
		{"schema", &gateway.Error{Kind: gateway.ErrSchemaViolation}, "unusable result"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := newScripted()
			inv.errs["infer_personality"] = tt.err
			col := &collector{}

			_, err := newOrchestrator(inv, types.PipelineConfig{}).Run(context.Background(),
				types.AnalysisRequest{Images: threeImages()}, col.emit)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err.(*gateway.Error).Kind)

			assert.Equal(t, "1p 1c 2p 2c 3p 3c 4p error", col.trace(t))
			var payload stream.ErrorPayload
			require.NoError(t, json.Unmarshal(col.last().Data, &payload))
			assert.Contains(t, payload.Error, tt.message)
			assert.Contains(t, payload.Error, StageName(4))
		})
	}
}

func TestRun_SchemaViolationNeverDefaulted(t *testing.T) {
	var nine []string
	for i := 0; i < 9; i++ {
		nine = append(nine, fmt.Sprintf(`{"icon":"star","label":"L%d","value":"%d"}`, i, i))
	}

	tests := []struct {
		name string
		tool string
		resp string
	}{
		{"too many highlights", "generate_insights", `{"highlights":[` + strings.Join(nine, ",") + `]}`},
		{"unknown icon", "generate_insights", `{"highlights":[{"icon":"rocket","label":"x","value":"1"}]}`},
		{"bad metric kind", "extract_data", `{"extractedData":[{"app":"A","metrics":[{"label":"x","value":"1","type":"speed"}]}]}`},
		{"missing sources", "identify_sources", `{}`},
		{"confidence out of range", "infer_personality", strings.Replace(personalityJSON, "0.8", "1.8", 1)},
		{"malformed type", "infer_personality", strings.Replace(personalityJSON, `"infj"`, `"INFJX"`, 1)},
		{"missing dimension", "infer_personality", `{"type":"INFJ","title":"t","traits":[],"explanation":"e","confidence":{"EI":{"letter":"I","confidence":0.5,"reason":"r"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := newScripted()
			inv.responses[tt.tool] = tt.resp
			col := &collector{}

			rc, err := newOrchestrator(inv, types.PipelineConfig{}).Run(context.Background(),
				types.AnalysisRequest{Images: threeImages()}, col.emit)
			require.Error(t, err)
			assert.ErrorIs(t, err, gateway.ErrSchemaViolation)
			assert.Equal(t, stream.EventError, col.last().Event)
			assert.Equal(t, tt.tool, inv.tools()[len(inv.tools())-1], "nothing runs after the violation")
			assert.Nil(t, rc.Report())
		})
	}
}

func TestRun_EmptyImages(t *testing.T) {
	inv := newScripted()
	col := &collector{}

	_, err := newOrchestrator(inv, types.PipelineConfig{}).Run(context.Background(), types.AnalysisRequest{}, col.emit)
	assert.ErrorIs(t, err, ErrNoImages)
	assert.Empty(t, inv.tools())
	assert.Empty(t, col.msgs)
}

func TestRun_ImagesOnlyOnVisualStages(t *testing.T) {
	inv := newScripted()
	col := &collector{}
	imgs := threeImages()

	_, err := newOrchestrator(inv, types.PipelineConfig{}).Run(context.Background(), types.AnalysisRequest{Images: imgs}, col.emit)
	require.NoError(t, err)

	require.Len(t, inv.calls, 5)
	assert.Equal(t, imgs, inv.calls[0].Images)
	assert.Equal(t, imgs, inv.calls[1].Images)
	for _, c := range inv.calls[2:] {
		assert.Empty(t, c.Images, c.Tool.Name)
	}
}

func TestRun_StrictnessOnlyChangesExtractionInstruction(t *testing.T) {
	calls := map[types.ExtractionMode][]gateway.Call{}
	for _, mode := range []types.ExtractionMode{types.ModeStrict, types.ModeNormal, types.ModeLoose} {
		inv := newScripted()
		_, err := newOrchestrator(inv, types.PipelineConfig{}).Run(context.Background(),
			types.AnalysisRequest{Images: threeImages(), Mode: mode}, (&collector{}).emit)
		require.NoError(t, err)
		calls[mode] = inv.calls
	}

	strict, normal, loose := calls[types.ModeStrict], calls[types.ModeNormal], calls[types.ModeLoose]

	// Same output schema for every mode.
	assert.Same(t, strict[1].Tool.Parameters, loose[1].Tool.Parameters)
	assert.Same(t, strict[1].Tool.Parameters, normal[1].Tool.Parameters)

	assert.Contains(t, strict[1].System, "unambiguously visible")
	assert.Contains(t, loose[1].System, "infer plausible supplementary values")
	assert.NotContains(t, normal[1].System, "unambiguously")
	assert.NotContains(t, normal[1].System, "plausible")

	// No other stage instruction depends on the mode.
	for _, i := range []int{0, 2, 3, 4} {
		assert.Equal(t, strict[i].System, loose[i].System, "stage %d", i+1)
		assert.Equal(t, strict[i].User, loose[i].User, "stage %d", i+1)
	}
}

func TestRun_InstructionsCarryPriorResults(t *testing.T) {
	inv := newScripted()
	_, err := newOrchestrator(inv, types.PipelineConfig{ReportYear: 2025}).Run(context.Background(),
		types.AnalysisRequest{Images: threeImages(), Style: types.StyleRetro}, (&collector{}).emit)
	require.NoError(t, err)

	sources, extraction := inv.calls[0], inv.calls[1]
	assert.NotContains(t, sources.User, "Spotify")
	assert.Contains(t, extraction.User, "Spotify (2025), Kindle (2025), Strava (2025)")

	insights, personality, narrative := inv.calls[2], inv.calls[3], inv.calls[4]
	assert.Contains(t, insights.User, "52,340")
	assert.Contains(t, insights.System, styleDescription(types.StyleRetro))
	assert.Contains(t, personality.User, "Books finished")
	assert.Contains(t, personality.User, "About 36 days of music")
	assert.Contains(t, personality.System, "J/P")

	assert.Contains(t, narrative.System, "2025")
	assert.Contains(t, narrative.User, "2025")
	assert.Contains(t, narrative.User, "INFJ")
	assert.Contains(t, narrative.User, "The Quiet Marathoner")
	assert.Contains(t, narrative.User, "1,204 km")
	assert.Contains(t, narrative.System, styleDescription(types.StyleRetro))
}

func TestRun_EmitFailureStopsRun(t *testing.T) {
	inv := newScripted()
	// Emits: 1p, 1c, 2p <- fails.
	col := &collector{failAt: 3}

	_, err := newOrchestrator(inv, types.PipelineConfig{}).Run(context.Background(),
		types.AnalysisRequest{Images: threeImages()}, col.emit)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmit)
	assert.Equal(t, []string{"identify_sources"}, inv.tools(), "no inference after the consumer is gone")
	assert.Equal(t, "1p 1c", col.trace(t))
	assert.Equal(t, 3, col.emits, "no error event is attempted on a dead channel")
}

func TestRun_ChannelBackpressure(t *testing.T) {
	inv := newScripted()
	ch := stream.NewChannel()
	o := newOrchestrator(inv, types.PipelineConfig{})

	errc := make(chan error, 1)
	go func() {
		defer ch.Close()
		_, err := o.Run(context.Background(), types.AnalysisRequest{Images: threeImages()}, ch.Send)
		errc <- err
	}()

	// Nothing is read yet, so the producer is parked on the first event.
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, inv.tools())

	var events []string
	for msg := range ch.Messages() {
		events = append(events, msg.Event)
	}
	require.NoError(t, <-errc)
	assert.Len(t, events, 11)
	assert.Equal(t, stream.EventComplete, events[10])
}

func TestRun_ConsumerAbandons(t *testing.T) {
	inv := newScripted()
	ch := stream.NewChannel()
	o := newOrchestrator(inv, types.PipelineConfig{})

	errc := make(chan error, 1)
	go func() {
		defer ch.Close()
		_, err := o.Run(context.Background(), types.AnalysisRequest{Images: threeImages()}, ch.Send)
		errc <- err
	}()

	<-ch.Messages() // 1 processing
	<-ch.Messages() // 1 completed
	ch.Abandon()

	err := <-errc
	assert.ErrorIs(t, err, ErrEmit)
	assert.ErrorIs(t, err, stream.ErrClosed)
	assert.LessOrEqual(t, len(inv.tools()), 1)
}

// blockingInvoker waits for the call context to end.
type blockingInvoker struct{}

func (blockingInvoker) Invoke(ctx context.Context, call gateway.Call) (json.RawMessage, error) {
	<-ctx.Done()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, &gateway.Error{Kind: gateway.ErrTimeout, Tool: call.Tool.Name, Err: ctx.Err()}
	}
	return nil, ctx.Err()
}

func TestRun_StageTimeout(t *testing.T) {
	col := &collector{}
	o := newOrchestrator(blockingInvoker{}, types.PipelineConfig{StageTimeout: 20 * time.Millisecond})

	_, err := o.Run(context.Background(), types.AnalysisRequest{Images: threeImages()}, col.emit)
	assert.ErrorIs(t, err, gateway.ErrTimeout)
	assert.Equal(t, "1p error", col.trace(t))
}

func TestRun_ContextCancelled(t *testing.T) {
	col := &collector{}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := newOrchestrator(blockingInvoker{}, types.PipelineConfig{}).Run(ctx,
		types.AnalysisRequest{Images: threeImages()}, col.emit)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "1p", col.trace(t), "no error event after cancellation")
}

func TestResumeFrom_Correction(t *testing.T) {
	inv := newScripted()
	o := newOrchestrator(inv, types.PipelineConfig{})

	first, err := o.Run(context.Background(), types.AnalysisRequest{Images: threeImages(), Style: types.StyleTech}, (&collector{}).emit)
	require.NoError(t, err)

	corrected := []types.AppData{
		{App: "Spotify", Metrics: []types.Metric{{Label: "Minutes listened", Value: "61,000", Kind: types.KindDuration}}},
	}
	base := first.WithCorrection(corrected)
	assert.Equal(t, first.ID(), base.ParentID())
	assert.NotEqual(t, first.ID(), base.ID())
	assert.Nil(t, base.Outputs().Insights)

	inv.calls = nil
	col := &collector{}
	rc, err := o.ResumeFrom(context.Background(), 3, base, col.emit)
	require.NoError(t, err)

	assert.Equal(t, "3p 3c 4p 4c 5p 5c complete", col.trace(t))
	assert.Equal(t, []string{"generate_insights", "infer_personality", "write_summary"}, inv.tools())
	assert.Contains(t, inv.calls[0].User, "61,000")
	assert.NotContains(t, inv.calls[0].User, "52,340")
	assert.Contains(t, inv.calls[0].System, styleDescription(types.StyleTech))

	require.NotNil(t, rc.Report())
	assert.Equal(t, corrected, rc.Report().ExtractedData)
	assert.Equal(t, 3, rc.Report().TotalApps, "stage 1 is kept")

	// The first run is untouched.
	assert.Equal(t, "52,340", first.Report().ExtractedData[0].Metrics[0].Value)
}

func TestResumeFrom_Preconditions(t *testing.T) {
	o := newOrchestrator(newScripted(), types.PipelineConfig{})
	noImages := NewRunContext(types.AnalysisRequest{}, 2025)

	tests := []struct {
		name string
		from int
		base RunContext
		want error
	}{
		{"stage zero", 0, noImages, ErrInvalidRequest},
		{"stage six", 6, noImages, ErrInvalidRequest},
		{"missing prior outputs", 3, noImages.WithSources(types.Sources{}), ErrMissingPrior},
		{"visual stage without images", 2, noImages.WithSources(types.Sources{}), ErrNoImages},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col := &collector{}
			_, err := o.ResumeFrom(context.Background(), tt.from, tt.base, col.emit)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, col.msgs)
		})
	}
}

func TestValidate(t *testing.T) {
	imgs := []string{"data:image/png;base64,AA"}
	tests := []struct {
		name      string
		req       types.AnalysisRequest
		wantStyle types.Style
		wantMode  types.ExtractionMode
		wantErr   error
	}{
		{"defaults", types.AnalysisRequest{Images: imgs}, types.StylePlayful, types.ModeNormal, nil},
		{"explicit", types.AnalysisRequest{Images: imgs, Style: types.StyleArtistic, Mode: types.ModeLoose}, types.StyleArtistic, types.ModeLoose, nil},
		{"no images", types.AnalysisRequest{Style: types.StyleTech}, "", "", ErrNoImages},
		{"unknown style", types.AnalysisRequest{Images: imgs, Style: "grunge"}, "", "", ErrInvalidRequest},
		{"unknown mode", types.AnalysisRequest{Images: imgs, Mode: "lenient"}, "", "", ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStyle, got.Style)
			assert.Equal(t, tt.wantMode, got.Mode)
		})
	}
}

func TestRunContextIsImmutable(t *testing.T) {
	rc := NewRunContext(types.AnalysisRequest{Images: threeImages()}, 2025)
	withSources := rc.WithSources(types.Sources{Sources: []types.Source{{App: "A", Year: "2025"}}})

	assert.Nil(t, rc.Outputs().Sources)
	require.NotNil(t, withSources.Outputs().Sources)
	assert.Equal(t, rc.ID(), withSources.ID())

	run := withSources.Run(types.RunFailed, "boom")
	assert.Equal(t, 3, run.ImageCount)
	assert.Equal(t, "boom", run.Error)
	assert.Equal(t, types.RunFailed, run.Status)

	restored := FromRun(run, 2025)
	assert.Equal(t, rc.ID(), restored.ID())
	assert.Equal(t, "A", restored.Outputs().Sources.Sources[0].App)
}

func TestNew_DefaultsYear(t *testing.T) {
	o := New(newScripted(), types.PipelineConfig{})
	assert.Equal(t, time.Now().Year(), o.cfg.ReportYear)
}
