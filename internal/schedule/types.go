package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pitchbot/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Workers        int
	DefaultTimeout time.Duration
	Timezone       string // IANA TZ, e.g. "Europe/Kaliningrad"
}

type task struct {
	name    string
	timeout time.Duration
	run     func(ctx context.Context) error
}

type scheduleDef struct {
	name    string
	spec    string // cron spec or @every
	timeout time.Duration
	job     func(ctx context.Context) error
	entryID cron.EntryID

	// Optional active window for interval jobs. Outside [notBefore, notAfter]
	// firings are skipped; past notAfter the definition removes itself.
	notBefore time.Time
	notAfter  time.Time
}

// Service runs named jobs: weekly crons, intervals (optionally bounded by a
// window) and one-shot timers. Names are stable keys: re-registering a name
// replaces the previous definition, removing an unknown name is a no-op.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	queue  chan task
	stopCh chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	// one-time timers (timers are runtime; the maps are persistent definitions
	// so registrations survive a stop/start cycle)
	tmu         sync.Mutex
	timers      map[string]*time.Timer
	onceAt      map[string]time.Time
	onceTimeout map[string]time.Duration
	onceJob     map[string]func(ctx context.Context) error
	onceVer     map[string]uint64
}

// JobInfo describes one registered job, for status output and tests.
type JobInfo struct {
	Name      string
	Spec      string
	Once      bool
	At        time.Time // one-shot target
	NotBefore time.Time
	NotAfter  time.Time
}
