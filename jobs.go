package main

import (
	"LocalTranslator/ai"
	"LocalTranslator/config"
	"LocalTranslator/discord"
	"LocalTranslator/srt"
	"LocalTranslator/translation"
	"LocalTranslator/utils"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"sync"
	"time"
)

const (
	JobFile             = "job.json"
	ResultFileSubtitles = "result.srt"
	ResultFileText      = "result.txt"
)

// JobView is the snapshot shape served over the API and persisted to
// job.json. Skipped carries parse diagnostics so a caller can see which
// blocks never made it into the job.
type JobView struct {
	Id               string             `json:"id"`
	Mode             string             `json:"mode"`
	FileName         string             `json:"fileName,omitempty"`
	SourceLanguage   string             `json:"sourceLanguage"`
	TargetLanguage   string             `json:"targetLanguage"`
	State            string             `json:"state"`
	Progress         int                `json:"progress"`
	Error            string             `json:"error,omitempty"`
	TotalEntries     int                `json:"totalEntries"`
	TotalBatches     int                `json:"totalBatches"`
	CompletedBatches int                `json:"completedBatches"`
	GapFilled        int                `json:"gapFilled"`
	Skipped          []srt.SkippedBlock `json:"skipped,omitempty"`
	Checksum         string             `json:"checksum"`
	CreatedAt        int64              `json:"createdAt"`
	UpdatedAt        int64              `json:"updatedAt"`
}

type Job struct {
	JobView
	worker *translation.Worker
	mutex  sync.RWMutex
}

// jobs holds every job created in this process. Jobs from earlier runs exist
// only as job.json snapshots under the output directory.
var jobs sync.Map // map[string]*Job

var jobsCache = CreateCache[[]map[string]interface{}](10*time.Second, true,
	func() ([]map[string]interface{}, error) {
		all := make([]map[string]interface{}, 0)
		files, err := os.ReadDir(config.TheConfig.Output)
		if err != nil {
			return all, err
		}
		for _, file := range files {
			if !file.IsDir() {
				continue
			}
			j := populate(file.Name())
			if j != nil {
				all = append(all, j)
			}
		}
		sort.Slice(all, func(i, j int) bool {
			return jsonNumber(all[i]["createdAt"]) > jsonNumber(all[j]["createdAt"])
		})
		return all, nil
	},
)

type cachedResult struct {
	data      string
	name      string
	fetchedAt time.Time
}

// resultCache keeps recently served on-disk results in memory. Live jobs
// never hit it; their output comes straight from the worker.
var resultCache = CreateMapCache[cachedResult](
	func(id string) (cachedResult, error) {
		for _, name := range []string{ResultFileSubtitles, ResultFileText} {
			b, err := os.ReadFile(utils.OutputJoin(id, name))
			if err == nil {
				return cachedResult{data: string(b), name: name, fetchedAt: time.Now()}, nil
			}
		}
		return cachedResult{}, fmt.Errorf("no result for job %s", id)
	},
	func(v cachedResult) bool {
		return time.Since(v.fetchedAt) > time.Minute
	},
)

func jsonNumber(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

func newSubtitleJob(content, fileName, sourceLang, targetLang string, params translation.Params) (*Job, error) {
	parsed := srt.Parse(content)
	backend, err := ai.New()
	if err != nil {
		return nil, err
	}
	worker, err := translation.NewSubtitleWorker(backend, parsed.Entries, params)
	if err != nil {
		return nil, err
	}
	job := newJob(translation.ModeSubtitles, content, sourceLang, targetLang, worker)
	job.FileName = fileName
	job.TotalEntries = len(parsed.Entries)
	job.Skipped = parsed.Skipped
	jobs.Store(job.Id, job)
	return job, nil
}

func newTextJob(content, sourceLang, targetLang string, params translation.Params) (*Job, error) {
	backend, err := ai.New()
	if err != nil {
		return nil, err
	}
	worker := translation.NewTextWorker(backend, content, params)
	job := newJob(translation.ModeText, content, sourceLang, targetLang, worker)
	jobs.Store(job.Id, job)
	return job, nil
}

// newJob builds the registry entry. Empty language arguments fall back to
// the configured pair.
func newJob(mode, content, sourceLang, targetLang string, worker *translation.Worker) *Job {
	if sourceLang == "" {
		sourceLang = config.TheConfig.SourceLanguage
	}
	if targetLang == "" {
		targetLang = config.TheConfig.TargetLanguage
	}
	source, _ := config.ParseLanguage(sourceLang)
	target, _ := config.ParseLanguage(targetLang)
	now := time.Now().UnixMilli()
	return &Job{
		JobView: JobView{
			Id:             utils.RandomString(8),
			Mode:           mode,
			SourceLanguage: source,
			TargetLanguage: target,
			State:          translation.StateIdle,
			TotalBatches:   worker.TotalBatches(),
			Checksum:       utils.ChecksumString(content),
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		worker: worker,
	}
}

func startJob(job *Job) error {
	if err := job.worker.Start(context.Background()); err != nil {
		return err
	}
	job.mutex.Lock()
	job.State = translation.StateRunning
	job.UpdatedAt = time.Now().UnixMilli()
	job.mutex.Unlock()
	writeJob(job)
	jobsCache.Invalidate()
	go pump(job)
	return nil
}

// pump drains the worker's event stream: it folds every event into the job
// snapshot, fans it out to websocket watchers, and persists progress so a
// restart loses at most the batch in flight.
func pump(job *Job) {
	id := job.Snapshot().Id
	for ev := range job.worker.Events() {
		job.apply(ev)
		roomBroadcast(id, ev)
		switch ev.Type {
		case translation.EventBatch:
			writeResult(job)
			writeJob(job)
		case translation.EventFinished:
			writeResult(job)
			writeJob(job)
			jobsCache.Invalidate()
			notifyFinished(job, ev)
		}
	}
}

func (j *Job) apply(ev translation.Event) {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	j.UpdatedAt = time.Now().UnixMilli()
	switch ev.Type {
	case translation.EventProgress:
		j.Progress = ev.Progress
	case translation.EventBatch:
		j.CompletedBatches = ev.BatchIndex
	case translation.EventFinished:
		j.State = ev.State
		j.Error = ev.Error
		if ev.Stats != nil {
			j.CompletedBatches = ev.Stats.CompletedBatches
			j.GapFilled = ev.Stats.GapFilled
		}
	}
}

func (j *Job) Snapshot() JobView {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	return j.JobView
}

func notifyFinished(job *Job, ev translation.Event) {
	view := job.Snapshot()
	elapsed := ""
	if ev.Stats != nil {
		elapsed = utils.FormatSecondsToTime(ev.Stats.Elapsed.Seconds())
	}
	switch ev.State {
	case translation.StateCompleted:
		discord.Infof("Job %s completed in %s: %d entries, %d batches, %d gap filled\n%s/jobs/%s/result",
			view.Id, elapsed, view.TotalEntries, view.CompletedBatches, view.GapFilled,
			config.TheConfig.Host, view.Id)
	case translation.StateFailed:
		discord.Errorf("Job %s failed after %d/%d batches: %s\n%s",
			view.Id, view.CompletedBatches, view.TotalBatches, ev.Error,
			discord.Json(utils.AsJson(view)))
	case translation.StateAborted:
		discord.Warnf("Job %s aborted after %d/%d batches",
			view.Id, view.CompletedBatches, view.TotalBatches)
	}
}

func getJob(id string) *Job {
	if v, ok := jobs.Load(id); ok {
		return v.(*Job)
	}
	return nil
}

func countJobs() (total, running int) {
	jobs.Range(func(_, value interface{}) bool {
		total++
		if !terminal(value.(*Job).Snapshot().State) {
			running++
		}
		return true
	})
	return total, running
}

func writeJob(job *Job) {
	view := job.Snapshot()
	dir := utils.OutputJoin(view.Id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		discord.Errorf("error creating job dir: %v", err)
		return
	}
	b, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		discord.Errorf("error marshalling job %s: %v", view.Id, err)
		return
	}
	if err := os.WriteFile(utils.OutputJoin(view.Id, JobFile), b, 0644); err != nil {
		discord.Errorf("error writing job %s: %v", view.Id, err)
	}
}

func writeResult(job *Job) {
	view := job.Snapshot()
	output := job.worker.Output()
	name := ResultFileSubtitles
	if view.Mode == translation.ModeText {
		name = ResultFileText
	}
	if err := os.MkdirAll(utils.OutputJoin(view.Id), 0755); err != nil {
		discord.Errorf("error creating job dir: %v", err)
		return
	}
	if err := os.WriteFile(utils.OutputJoin(view.Id, name), []byte(output), 0644); err != nil {
		discord.Errorf("error writing result %s: %v", view.Id, err)
	}
	resultCache.Delete(view.Id)
}

// resultFor serves the output of a finished job: straight from the worker
// for jobs in this process, from disk for jobs that survived a restart.
// Running jobs have no result yet; watch the event stream instead.
func resultFor(id string) (string, string, error) {
	if job := getJob(id); job != nil {
		view := job.Snapshot()
		if !terminal(view.State) {
			return "", "", fmt.Errorf("job %s is still %s", id, view.State)
		}
		name := ResultFileSubtitles
		if view.Mode == translation.ModeText {
			name = ResultFileText
		}
		return job.worker.Output(), name, nil
	}
	if !jobIdRegex.MatchString(id) {
		return "", "", fmt.Errorf("no result for job %s", id)
	}
	cached, err := resultCache.Get(id)
	if err != nil {
		return "", "", err
	}
	return cached.data, cached.name, nil
}

// Real ids only ever come from RandomString. Route parameters reuse them, so
// anything outside that alphabet (dots, path separators) stays out of the
// output tree.
var jobIdRegex = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

func populate(id string) map[string]interface{} {
	if !jobIdRegex.MatchString(id) {
		return nil
	}
	b, err := os.ReadFile(utils.OutputJoin(id, JobFile))
	if err != nil {
		return nil
	}
	var data map[string]interface{}
	if err := json.Unmarshal(b, &data); err != nil {
		discord.Errorf("error unmarshalling job %s: %v", id, err)
		return nil
	}
	return data
}

func terminal(state string) bool {
	switch state {
	case translation.StateCompleted, translation.StateFailed, translation.StateAborted:
		return true
	}
	return false
}

// sweepJobs drops jobs past the retention window, both from the in-process
// registry and from disk. Running jobs are never swept.
func sweepJobs() {
	cutoff := time.Now().Add(-config.TheConfig.JobRetention)
	jobs.Range(func(key, value interface{}) bool {
		view := value.(*Job).Snapshot()
		if terminal(view.State) && time.UnixMilli(view.UpdatedAt).Before(cutoff) {
			jobs.Delete(key)
		}
		return true
	})

	files, err := os.ReadDir(config.TheConfig.Output)
	if err != nil {
		return
	}
	removed := 0
	for _, file := range files {
		if !file.IsDir() {
			continue
		}
		id := file.Name()
		if job := getJob(id); job != nil && !terminal(job.Snapshot().State) {
			continue
		}
		data := populate(id)
		if data == nil {
			continue
		}
		updatedAt := time.UnixMilli(int64(jsonNumber(data["updatedAt"])))
		if updatedAt.After(cutoff) {
			continue
		}
		if err := os.RemoveAll(utils.OutputJoin(id)); err != nil {
			discord.Errorf("error sweeping job %s: %v", id, err)
			continue
		}
		resultCache.Delete(id)
		removed++
	}
	if removed > 0 {
		discord.Infof("Swept %d expired jobs", removed)
		jobsCache.Invalidate()
	}
}
