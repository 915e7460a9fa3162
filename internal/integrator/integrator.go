// Package integrator is the top-level serial driver: it walks the
// stages INITIALIZING, BASIC_DATA, FORM_OUTLINE, FORM_DETAIL and
// TERMINATING, skipping work a previous run already finished, and
// persists progress after every observed event so any interruption can
// resume.
package integrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/jobcan-tools/jobcan-di/internal/appdir"
	"github.com/jobcan-tools/jobcan-di/internal/config"
	"github.com/jobcan-tools/jobcan-di/internal/dierr"
	"github.com/jobcan-tools/jobcan-di/internal/gateway"
	"github.com/jobcan-tools/jobcan-di/internal/jobcan"
	"github.com/jobcan-tools/jobcan-di/internal/logging"
	"github.com/jobcan-tools/jobcan-di/internal/ratelimit"
	"github.com/jobcan-tools/jobcan-di/internal/rawsink"
	"github.com/jobcan-tools/jobcan-di/internal/status"
	"github.com/jobcan-tools/jobcan-di/internal/store"
	"github.com/jobcan-tools/jobcan-di/internal/telemetry"
	"github.com/jobcan-tools/jobcan-di/internal/tempstore"
)

// NotificationFileName is where notification lines land under the app
// directory.
const NotificationFileName = "notifications.log"

// Option customizes an Integrator before initialization.
type Option func(*Integrator)

// WithBaseURL points the API client somewhere else, for tests.
func WithBaseURL(baseURL string) Option {
	return func(i *Integrator) { i.baseURL = baseURL }
}

// WithHTTPClient swaps the transport.
func WithHTTPClient(c *http.Client) Option {
	return func(i *Integrator) { i.httpClient = c }
}

// WithProgressCallback registers an observer invoked after every
// progress mutation.
func WithProgressCallback(fn func(*status.Status)) Option {
	return func(i *Integrator) { i.onProgress = fn }
}

// WithAppliedAfter forces the outline listing to use one stamp for
// every form instead of the recorded last-access times.
func WithAppliedAfter(stamp string) Option {
	return func(i *Integrator) { i.appliedAfter = stamp }
}

// Integrator owns every long-lived resource of a run: config, logger,
// rate limiter, API client, gateway with its database, raw sink, the
// temp store and the persisted status.
type Integrator struct {
	dir  appdir.Dir
	opts config.Options

	log      *logging.Logger
	notifier *logging.FileNotifier
	limiter  *ratelimit.Limiter
	client   *jobcan.Client
	gw       *gateway.Gateway
	sink     *rawsink.Manager
	temp     *tempstore.MemoryStore
	lock     *flock.Flock
	metrics  *telemetry.FetchMetrics

	statusFile *status.File
	st         *status.Status // live status of the current run
	prevStatus *status.Status // snapshot loaded at startup
	prev       status.Progress

	warnings []*dierr.Warning

	baseURL      string
	httpClient   *http.Client
	onProgress   func(*status.Status)
	appliedAfter string

	watchStop context.CancelFunc
	watchDone chan struct{}

	mu          sync.Mutex
	cancelErr   *dierr.Fatal
	initialized bool
}

// New creates an integrator rooted at the given application directory.
// Nothing is opened until Initialize.
func New(root string, options ...Option) *Integrator {
	i := &Integrator{dir: appdir.New(root)}
	for _, opt := range options {
		opt(i)
	}
	return i
}

// Options returns the effective configuration after Initialize.
func (i *Integrator) Options() config.Options { return i.opts }

// Warnings returns the in-memory warning log of the current run.
func (i *Integrator) Warnings() []*dierr.Warning { return i.warnings }

// Status returns the live status of the current run.
func (i *Integrator) Status() *status.Status { return i.st }

// Store exposes the domain store after Initialize, for retrieval
// commands.
func (i *Integrator) Store() *store.Store {
	if i.gw == nil {
		return nil
	}
	return i.gw.Store()
}

// Initialize loads configuration, acquires the single-instance lock,
// opens every resource and verifies the API token. A fatal error here
// leaves the integrator uninitialized; Run will refuse to start.
func (i *Integrator) Initialize(ctx context.Context) *dierr.Fatal {
	if err := i.dir.EnsureLayout(); err != nil {
		return dierr.FatalFrom(dierr.Unexpected, err)
	}

	opts, cfgWarn := config.Load(i.dir.ConfigFile())
	i.opts = opts

	log, logWarn := logging.Open(
		i.dir.DatabaseFile(opts.LogPath),
		opts.LogInit == config.LogInitAlwaysOnStartup,
		opts.LogEncoding,
		opts.LogToConsole,
	)
	i.log = log
	if cfgWarn != nil {
		i.recordWarning(cfgWarn)
	}
	if logWarn != nil {
		i.recordWarning(logWarn)
	}

	i.setupNotifier()

	i.lock = flock.New(i.dir.LockFile())
	locked, err := i.lock.TryLock()
	if err != nil || !locked {
		fatal := dierr.NewFatal(dierr.AlreadyRunning).With("lock", i.dir.LockFile())
		if err != nil {
			fatal = fatal.With("error", err.Error())
		}
		return fatal
	}

	i.statusFile = status.NewFile(i.dir.StatusFile())
	prev, statusWarn := i.statusFile.Load()
	if statusWarn != nil {
		i.recordWarning(statusWarn)
	}
	i.prevStatus = prev
	i.beginRunStatus()

	token, fatal := opts.ResolveToken()
	if fatal != nil {
		return fatal
	}

	i.limiter = ratelimit.New(opts.RequestInterval())
	i.metrics = telemetry.NewFetchMetrics()
	client := jobcan.NewClient(token).WithLimiter(i.limiter).WithMetrics(i.metrics)
	if i.baseURL != "" {
		client = client.WithBaseURL(i.baseURL)
	}
	if i.httpClient != nil {
		client = client.WithHTTPClient(i.httpClient)
	}
	i.client = client

	if fatal := client.VerifyToken(ctx); fatal != nil {
		return fatal
	}

	st, fatal := store.Open(ctx, i.dir.DatabaseFile(opts.DBPath))
	if fatal != nil {
		return fatal
	}
	if fatal := st.CreateTables(ctx); fatal != nil {
		_ = st.Close()
		return fatal
	}

	sink, err := i.openSink(ctx, opts)
	if err != nil {
		_ = st.Close()
		return dierr.FatalFrom(dierr.Unexpected, err)
	}
	i.sink = rawsink.NewManager(sink)
	i.gw = gateway.New(client, st, i.sink.Sink())

	temp, err := tempstore.NewMemoryStore(tempstore.NewFileStore(i.dir.OutlineTempFile()))
	if err != nil {
		// A corrupt temp file cannot be resumed; drop it and relist.
		i.recordWarning(dierr.NewWarning(dierr.InvalidStatusFilePath).
			With("path", i.dir.OutlineTempFile()).
			With("error", err.Error()))
		_ = os.Remove(i.dir.OutlineTempFile())
		temp, err = tempstore.NewMemoryStore(tempstore.NewFileStore(i.dir.OutlineTempFile()))
		if err != nil {
			_ = i.sink.Close()
			_ = i.gw.Close()
			return dierr.FatalFrom(dierr.Unexpected, err)
		}
	}
	i.temp = temp

	i.startConfigWatch()
	i.initialized = true
	i.log.Infof("initialized: db=%s interval=%s", opts.DBPath, opts.RequestInterval())
	return nil
}

// beginRunStatus derives the live status and the skip snapshot from the
// loaded previous status. A terminal previous run starts over from the
// beginning while keeping its failure records and last-access stamps.
func (i *Integrator) beginRunStatus() {
	i.prev = i.prevStatus.Progress
	if i.prevStatus.IsCompleted() || i.prevStatus.IsFailed() {
		i.prev = status.NewProgress()
	}

	i.st = status.New()
	i.st.ConfigFilePath = i.dir.ConfigFile()
	for formID, stamp := range i.prevStatus.FormAPILastAccess {
		i.st.FormAPILastAccess[formID] = stamp
	}
}

func (i *Integrator) setupNotifier() {
	i.notifier = logging.NewFileNotifier(i.dir.DatabaseFile(NotificationFileName))
	if i.opts.ClearPreviousNotificationsOnStartup {
		_ = i.notifier.Clear()
	}
	if !i.opts.EnableNotification {
		return
	}
	i.log.SetNotifier(func(level logging.Level, msg string) {
		if i.opts.NotifyAt(notifyLevel(level)) {
			i.notifier.Notify(level, msg)
		}
	})
}

func notifyLevel(l logging.Level) config.NotifyLevel {
	switch l {
	case logging.LevelError:
		return config.NotifyError
	case logging.LevelWarning:
		return config.NotifyWarning
	default:
		return config.NotifyInfo
	}
}

func (i *Integrator) openSink(ctx context.Context, opts config.Options) (rawsink.Sink, error) {
	switch opts.SaveRawData {
	case config.RawDataFile:
		return rawsink.NewFileSink(i.dir.RawDataDir(opts.RawDataDir), opts.JSONIndent, opts.JSONEncoding)
	case config.RawDataDB:
		return rawsink.NewDBSink(ctx, i.dir.RawResponseDB(opts.RawDataDir))
	default:
		return rawsink.Discard{}, nil
	}
}

// startConfigWatch reloads config.ini on change and feeds the request
// interval to the live rate limiter. Other options stay fixed for the
// lifetime of the process.
func (i *Integrator) startConfigWatch() {
	ctx, cancel := context.WithCancel(context.Background())
	i.watchStop = cancel
	i.watchDone = make(chan struct{})
	go func() {
		defer close(i.watchDone)
		_ = config.Watch(ctx, i.dir.ConfigFile(), func(opts config.Options) {
			i.limiter.SetInterval(opts.RequestInterval())
			i.log.Infof("request interval updated: %s", opts.RequestInterval())
		})
	}()
}

// Cancel requests a stop. The flag is checked at the next stage
// boundary; in-flight work completes first.
func (i *Integrator) Cancel(fatal *dierr.Fatal) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cancelErr == nil {
		i.cancelErr = fatal
	}
}

func (i *Integrator) canceled() *dierr.Fatal {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.cancelErr
}

// Run executes one full pass. Fatal errors short-circuit to the failed
// terminal state; retryable warnings are recorded and the pass
// continues.
func (i *Integrator) Run(ctx context.Context) (fatal *dierr.Fatal) {
	if !i.initialized {
		fatal := dierr.NewFatal(dierr.NotInitialized)
		i.failRun(fatal)
		return fatal
	}

	if i.opts.CatchErrorsOnRun {
		defer func() {
			if r := recover(); r != nil {
				fatal = dierr.NewFatal(dierr.Unexpected).
					With("panic", fmt.Sprint(r)).
					With("stack", string(debug.Stack()))
				i.failRun(fatal)
			}
		}()
	}

	i.updateProgress(status.StageInitializing, status.SubNone)

	if fatal := i.runBasicData(ctx); fatal != nil {
		i.failRun(fatal)
		return fatal
	}
	if fatal := i.runFormOutlines(ctx); fatal != nil {
		i.failRun(fatal)
		return fatal
	}
	if fatal := i.runFormDetails(ctx); fatal != nil {
		i.failRun(fatal)
		return fatal
	}

	i.updateProgress(status.StageTerminating, status.SubCompleted)
	i.log.Infof("run completed")
	return nil
}

// runBasicData fetches the reference endpoints, including the form
// listing which opens the outline stage. Each committed natural key
// lands in the sub-stage specifics, so a resumed run skips the items
// an interrupted pass already stored.
func (i *Integrator) runBasicData(ctx context.Context) *dierr.Fatal {
	for _, apiType := range jobcan.BasicDataTypes() {
		if fatal := i.canceled(); fatal != nil {
			return fatal
		}
		if !i.prev.IsFutureAPI(apiType, "") {
			i.log.Debugf("skipping %s: already done", apiType)
			continue
		}
		stage, sub := status.StageOf(apiType)
		i.updateProgress(stage, sub)

		result, fatal := i.gw.FetchBasicData(ctx, apiType, gateway.BasicCallbacks{
			SkipItem: func(key string) bool {
				if key == "" || i.prev.IsFutureAPI(apiType, key) {
					return false
				}
				// Committed by the interrupted run; keep it visible in
				// the persisted sub-stage set.
				i.st.AddSpecifics(key)
				return true
			},
			OnStored: func(key string) {
				i.st.AddSpecifics(key)
				i.persist()
			},
			OnWarning: func(w *dierr.Warning) {
				i.recordWarning(w)
				if w.Kind == dierr.ApiResponseJsonDecodeError && w.Args["key"] != "" {
					i.st.FetchFailure.Record(apiType, w.Args["key"])
				}
			},
		})
		if fatal != nil {
			return fatal
		}
		i.st.DBSaveFailure.Record(apiType, result.FailedKeys...)
		i.st.FetchFailure.MarkDirty(apiType, !result.Clean)
		i.persist()
	}
	return nil
}

// runFormOutlines lists request ids per form into the temp store.
func (i *Integrator) runFormOutlines(ctx context.Context) *dierr.Fatal {
	if fatal := i.canceled(); fatal != nil {
		return fatal
	}
	if !i.prev.IsFutureProcess(status.StageFormOutline, status.SubGetFormOutline, "") {
		i.log.Debugf("skipping form outlines: already done")
		return nil
	}
	i.updateProgress(status.StageFormOutline, status.SubGetFormOutline)

	opts := gateway.OutlineOptions{
		AppliedAfter:         i.st.FormAPILastAccess,
		AppliedAfterOverride: i.appliedAfter,
		IncludeCanceled:      i.opts.IncludeCanceledForms,
		SkipForm: func(formID int) bool {
			return !i.prev.IsFutureProcess(status.StageFormOutline, status.SubGetFormOutline, strconv.Itoa(formID))
		},
	}
	return i.gw.FetchFormOutlines(ctx, opts,
		func(formID int, outline *tempstore.FormOutline) {
			i.temp.Put(formID, outline)
			if err := i.temp.Flush(); err != nil {
				i.recordWarning(dierr.NewWarning(dierr.DBUpdateFailed).
					With("table", "form_outline_temp").
					With("error", err.Error()))
			}
			i.st.AddSpecifics(strconv.Itoa(formID))
			i.persist()
		},
		func(formID int, requestID string) {
			i.notifier.SetProgress(fmt.Sprintf("FORM_OUTLINE form=%d request=%s", formID, requestID))
		},
		i.recordWarning)
}

// runFormDetails fetches the full document for every collected id plus
// the previous run's failed ids.
func (i *Integrator) runFormDetails(ctx context.Context) *dierr.Fatal {
	if fatal := i.canceled(); fatal != nil {
		return fatal
	}
	if !i.prev.IsFutureProcess(status.StageFormDetail, status.SubGetRequestDetail, "") {
		i.log.Debugf("skipping form details: already done")
		return nil
	}
	i.updateProgress(status.StageFormDetail, status.SubGetRequestDetail)

	targets := map[int][]string{}
	for formID, outline := range i.temp.Outlines() {
		targets[formID] = append(targets[formID], outline.IDs...)
	}
	for formID, set := range i.prevStatus.FetchFailure.RequestDetail {
		targets[formID] = append(targets[formID], set.Sorted()...)
	}
	for formID, set := range i.prevStatus.DBSaveFailure.RequestDetail {
		targets[formID] = append(targets[formID], set.Sorted()...)
	}

	// Ids committed before an interruption of this same sub-stage are
	// not refetched.
	var ignore map[int]status.StringSet
	if i.prev.Outline == status.StageFormDetail && len(i.prev.Specifics) > 0 {
		ignore = map[int]status.StringSet{}
		for formID := range targets {
			ignore[formID] = i.prev.Specifics
		}
	}

	return i.gw.UpdateFormDetails(ctx, targets, ignore, gateway.DetailCallbacks{
		OnTick: func(formID int, requestID string, warn *dierr.Warning) {
			if warn != nil {
				i.recordWarning(warn)
				if warn.Kind == dierr.DBUpdateFailed {
					i.st.DBSaveFailure.RecordDetail(formID, requestID)
				} else {
					i.st.FetchFailure.RecordDetail(formID, requestID)
				}
				i.persist()
				return
			}
			i.st.FetchFailure.ResolveDetail(formID, requestID)
			i.st.DBSaveFailure.ResolveDetail(formID, requestID)
			i.st.AddSpecifics(requestID)
			if outline, ok := i.temp.Outlines()[formID]; ok {
				outline.Remove(requestID)
			}
			i.persist()
			i.notifier.SetProgress(fmt.Sprintf("FORM_DETAIL form=%d request=%s", formID, requestID))
		},
		OnDone: func(formID int) {
			if outline, ok := i.temp.Outlines()[formID]; ok {
				if outline.Success {
					i.st.TouchLastAccess(formID, outline.LastAccess)
				}
				if outline.IsEmpty() {
					i.temp.Delete(formID)
				}
			}
			if err := i.temp.Flush(); err != nil {
				i.recordWarning(dierr.NewWarning(dierr.DBUpdateFailed).
					With("table", "form_outline_temp").
					With("error", err.Error()))
			}
			i.persist()
		},
	})
}

// Restart clears a terminal end-state, zeroes the warning log,
// re-snapshots the previous progress and runs again. Used by the
// continuous-operation loop.
func (i *Integrator) Restart(ctx context.Context) *dierr.Fatal {
	i.warnings = nil
	i.mu.Lock()
	i.cancelErr = nil
	i.mu.Unlock()

	if !i.initialized {
		if fatal := i.Initialize(ctx); fatal != nil {
			i.failRun(fatal)
			return fatal
		}
	} else {
		prev, warn := i.statusFile.Load()
		if warn != nil {
			i.recordWarning(warn)
		}
		i.prevStatus = prev
		i.beginRunStatus()
	}
	return i.Run(ctx)
}

// Cleanup releases every resource. Temp files are deleted only when
// the run completed; a failed run keeps them so the next one resumes.
func (i *Integrator) Cleanup() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if i.watchStop != nil {
		i.watchStop()
		<-i.watchDone
		i.watchStop = nil
	}
	if i.temp != nil {
		if i.st != nil && i.st.IsCompleted() {
			keep(i.temp.Cleanup())
		} else {
			keep(i.temp.Flush())
		}
	}
	if i.sink != nil {
		keep(i.sink.Close())
	}
	if i.gw != nil {
		keep(i.gw.Close())
	}
	if i.lock != nil {
		keep(i.lock.Unlock())
	}
	if i.notifier != nil {
		i.notifier.ClearProgress()
	}
	if i.log != nil {
		keep(i.log.Close())
	}
	i.initialized = false
	return firstErr
}

// failRun records the fatal error and moves to the failed terminal
// state. Temp files are retained.
func (i *Integrator) failRun(fatal *dierr.Fatal) {
	if i.st == nil {
		return
	}
	i.st.LastError = fatal
	if i.log != nil {
		i.log.Fatal(fatal)
	}
	i.updateProgress(status.StageTerminating, status.SubFailed)
}

// updateProgress mutates the progress pair, persists, and notifies.
func (i *Integrator) updateProgress(stage status.Stage, sub status.SubStage) {
	i.st.Set(stage, sub)
	i.persist()
	if i.notifier != nil {
		i.notifier.SetProgress(fmt.Sprintf("%s %s", stage, sub))
	}
	if i.log != nil {
		i.log.Infof("progress: %s %s", stage, sub)
	}
}

// persist writes the merged view of this run's status and the previous
// run's to disk. The live status stays unmerged so the merge rule is
// always applied against the original snapshot.
func (i *Integrator) persist() {
	if i.statusFile == nil || i.st == nil {
		return
	}
	merged := cloneStatus(i.st)
	merged.Merge(i.prevStatus)
	if err := i.statusFile.Save(merged); err != nil {
		i.recordWarning(dierr.NewWarning(dierr.InvalidStatusFilePath).
			With("path", i.statusFile.Path()).
			With("error", err.Error()))
	}
	if i.onProgress != nil {
		i.onProgress(merged)
	}
}

func (i *Integrator) recordWarning(w *dierr.Warning) {
	if w == nil {
		return
	}
	i.warnings = append(i.warnings, w)
	i.metrics.Warning(context.Background(), string(w.Kind))
	if i.log != nil {
		i.log.Warning(w)
	}
}

// cloneStatus deep-copies through the JSON codec, the same shape the
// status file uses.
func cloneStatus(s *status.Status) *status.Status {
	data, err := json.Marshal(s)
	if err != nil {
		dup := *s
		return &dup
	}
	out := status.New()
	if err := json.Unmarshal(data, out); err != nil {
		dup := *s
		return &dup
	}
	return out
}

// WithIntegrator runs fn inside an initialized integrator and always
// cleans up, mirroring a with-style scoped resource.
func WithIntegrator(ctx context.Context, root string, options []Option, fn func(*Integrator) *dierr.Fatal) *dierr.Fatal {
	i := New(root, options...)
	defer func() { _ = i.Cleanup() }()
	if fatal := i.Initialize(ctx); fatal != nil {
		i.failRun(fatal)
		return fatal
	}
	return fn(i)
}

// RunLoop repeats Restart with a pause between passes until ctx is
// done or a fatal error occurs.
func (i *Integrator) RunLoop(ctx context.Context, pause time.Duration) *dierr.Fatal {
	for {
		if fatal := i.Restart(ctx); fatal != nil {
			return fatal
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(pause):
		}
	}
}
