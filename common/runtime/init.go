package runtime

import (
	"time"

	"github.com/eventpix/media-archiver/common/config"
	"github.com/eventpix/media-archiver/common/version"
	"github.com/eventpix/media-archiver/errcache"
	"github.com/eventpix/media-archiver/metrics"
)

func RunStartupSequence() {
	version.Log()
	LoadErrorCaches()
	metrics.Init()
}

func LoadErrorCaches() {
	failureMinutes := config.Get().Fetch.FailureCacheMinutes
	errcache.Init(time.Duration(failureMinutes) * time.Minute)
}
