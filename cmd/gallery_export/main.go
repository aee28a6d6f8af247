package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bep/debounce"
	"github.com/dustin/go-humanize"
	"github.com/eventpix/media-archiver/archival"
	"github.com/eventpix/media-archiver/common/config"
	"github.com/eventpix/media-archiver/common/logging"
	"github.com/eventpix/media-archiver/common/rcontext"
	"github.com/eventpix/media-archiver/common/runtime"
	"github.com/eventpix/media-archiver/common/version"
	"github.com/eventpix/media-archiver/fetch"
	"github.com/eventpix/media-archiver/metrics"
	"github.com/fatih/color"
	"github.com/getsentry/sentry-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type manifest struct {
	Title string         `json:"title"`
	Files []manifestFile `json:"files"`
}

type manifestFile struct {
	Name          string `json:"name"`
	SizeHintBytes int64  `json:"sizeHintBytes"`
	Kind          string `json:"kind"`
	SourceURL     string `json:"sourceUrl"`
}

func main() {
	configPath := flag.String("config", "media-archiver.yaml", "The path to the configuration")
	manifestPath := flag.String("manifest", "", "The path to a JSON manifest describing the gallery to export")
	destination := flag.String("destination", "./gallery.zip", "Where to write the finished archive")
	versionFlag := flag.Bool("version", false, "Prints the version and exits")
	flag.Parse()
	version.SetDefaults()

	if *versionFlag {
		fmt.Println("gallery_export " + version.Summary())
		return // exit 0
	}

	// Override config path with config for Docker users
	configEnv := os.Getenv("ARCHIVER_CONFIG")
	if configEnv != "" {
		configPath = &configEnv
	}

	if *manifestPath == "" {
		flag.Usage()
		os.Exit(1)
		return
	}

	config.Path = *configPath
	if config.Get().Sentry.Enabled {
		logrus.Info("Setting up Sentry for debugging...")
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.Get().Sentry.Dsn,
			Environment: config.Get().Sentry.Environment,
			Debug:       config.Get().Sentry.Debug,
			Release:     fmt.Sprintf("%s-%s", version.Version, version.GitCommit),
		})
		if err != nil {
			panic(err)
		}
	}
	defer sentry.Flush(2 * time.Second)
	defer sentry.Recover()

	err := logging.Setup(
		config.Get().General.LogDirectory,
		config.Get().General.LogColors,
		config.Get().General.JsonLogs,
		config.Get().General.LogLevel,
	)
	if err != nil {
		panic(err)
	}

	logrus.Info("Starting up...")
	runtime.RunStartupSequence()
	defer metrics.Stop()

	m, err := readManifest(*manifestPath)
	if err != nil {
		logrus.Fatal("Unable to read manifest: ", err)
	}

	files := archival.UsableFiles(toDescriptors(m.Files))
	if len(files) < len(m.Files) {
		logrus.Warnf("Skipping %d unusable entries from the manifest", len(m.Files)-len(files))
	}

	ctx := rcontext.Initial()

	debounced := debounce.New(100 * time.Millisecond)
	opts := archival.DefaultOptions(config.Get())
	opts.Fetcher = fetch.NewClient(ctx)
	opts.OnProgress = func(p archival.Progress) {
		debounced(func() {
			fmt.Printf("\r%3d%% (%d/%d) %s", p.Percentage, p.ProcessedFiles, p.TotalFiles, p.CurrentFile)
		})
	}
	opts.OnError = func(f archival.FileDescriptor, err error) {
		logrus.Warnf("Skipped %s: %v", f.Name, err)
	}

	mgr := archival.New(opts)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		logrus.Warn("Interrupt received - keeping what's already fetched and stopping")
		mgr.Cancel()
	}()

	logrus.Info("Starting export...")
	blob, err := mgr.Generate(ctx, files, m.Title)
	fmt.Println()
	if err != nil {
		logrus.Fatal("Export failed: ", err)
	}
	defer blob.Release()

	if err := writeBlob(blob, *destination); err != nil {
		logrus.Fatal("Unable to write archive: ", err)
	}

	snap := mgr.Snapshot()
	if snap.Err != "" {
		color.Yellow("Archive degraded: %s", snap.Err)
	}
	color.Green("Export complete! %d files (%s) written to %s", blob.NumFiles, humanize.Bytes(uint64(blob.Len())), *destination)
}

func readManifest(p string) (*manifest, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	m := &manifest{}
	if err := json.Unmarshal(b, m); err != nil {
		return nil, errors.Wrap(err, "not a valid gallery manifest")
	}
	if len(m.Files) == 0 {
		return nil, errors.New("manifest lists no files")
	}
	if m.Title == "" {
		m.Title = "gallery"
	}
	return m, nil
}

func toDescriptors(files []manifestFile) []archival.FileDescriptor {
	descriptors := make([]archival.FileDescriptor, 0, len(files))
	for _, f := range files {
		descriptors = append(descriptors, archival.FileDescriptor{
			Name:          f.Name,
			SizeHintBytes: f.SizeHintBytes,
			Kind:          f.Kind,
			SourceURL:     f.SourceURL,
		})
	}
	return descriptors
}

func writeBlob(blob *archival.Blob, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := blob.WriteTo(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
