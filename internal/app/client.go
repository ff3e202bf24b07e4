package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/clipforge/clipforge/internal/apiclient"
	"github.com/clipforge/clipforge/internal/clips"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/credentials"
	"github.com/clipforge/clipforge/internal/media"
	"github.com/clipforge/clipforge/internal/upload"
)

// ErrNotSignedIn is returned by commands that need a stored session.
var ErrNotSignedIn = errors.New("not signed in: run `clipforge login` first")

const azureBlockSize = 4 << 20

type clientEnv struct {
	store  *credentials.SQLiteStore
	api    *apiclient.Client
	logger *slog.Logger
}

func (e *clientEnv) Close() error {
	return e.store.Close()
}

func (r *runner) openClient(ctx context.Context, cfg config.Config) (*clientEnv, error) {
	logger := r.clientLogger(cfg)

	store, err := credentials.OpenSQLite(ctx, cfg.Client.CredentialsPath)
	if err != nil {
		return nil, err
	}

	api, err := apiclient.New(apiclient.Options{
		BaseURL:        cfg.Client.APIBaseURL,
		Store:          store,
		RequestTimeout: cfg.Client.RequestTimeout,
		RefreshTimeout: cfg.Client.RefreshTimeout,
		OnSessionExpired: func(error) {
			fmt.Fprintln(r.stderr, "Your session has expired. Run `clipforge login` to sign in again.")
		},
		Logger: logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &clientEnv{store: store, api: api, logger: logger}, nil
}

func (r *runner) startSession(ctx context.Context, cfg config.Config, command string, args []string) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(r.stderr)
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("CLIPFORGE_PASSWORD"), "account password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(*email) == "" {
		line, err := r.readLine("Email: ")
		if err != nil {
			return fmt.Errorf("read email: %w", err)
		}
		*email = line
	}
	if *password == "" {
		line, err := r.readLine("Password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		*password = line
	}

	env, err := r.openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	if command == "signup" {
		err = env.api.Signup(ctx, strings.TrimSpace(*email), *password)
	} else {
		err = env.api.Login(ctx, strings.TrimSpace(*email), *password)
	}
	if err != nil {
		return fmt.Errorf("%s failed: %s", command, describeAPIError(err))
	}

	fmt.Fprintf(r.stdout, "Signed in as %s\n", strings.TrimSpace(*email))
	return nil
}

func (r *runner) logout(ctx context.Context, cfg config.Config) error {
	env, err := r.openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.api.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(r.stdout, "Signed out")
	return nil
}

func (r *runner) upload(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	fs.SetOutput(r.stderr)
	yes := fs.Bool("yes", false, "submit without asking for confirmation")
	wait := fs.Bool("wait", false, "wait for generated clips after upload")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: clipforge upload [--yes] [--wait] <video file>")
	}

	env, err := r.openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	if !env.api.Authenticated(ctx) {
		return ErrNotSignedIn
	}

	svc := upload.NewService(env.api, newProcessor(cfg, env.logger), newBlobWriter(cfg), cfg.Client.SlotExpiry, env.logger)
	hooks := upload.Hooks{
		Accepted: func(res media.Result) {
			fmt.Fprintf(r.stdout, "%s: %s, %s, %ds\n", res.File.Name, res.ContentType, humanize.Bytes(uint64(res.File.Size)), res.Duration)
			if res.ThumbnailErr != nil {
				fmt.Fprintln(r.stdout, "Preview unavailable; continuing without a thumbnail")
			}
		},
		Progress: func(percent int, sent, total int64) {
			fmt.Fprintf(r.stdout, "\rUploading... %3d%% (%s / %s)", percent, humanize.Bytes(uint64(sent)), humanize.Bytes(uint64(total)))
		},
		Confirm: func(_ context.Context, res media.Result, _ upload.Slot) bool {
			fmt.Fprintln(r.stdout)
			if *yes {
				return true
			}
			answer, err := r.readLine(fmt.Sprintf("Submit %s for clip generation? [y/N] ", res.File.Name))
			if err != nil {
				return false
			}
			answer = strings.ToLower(strings.TrimSpace(answer))
			return answer == "y" || answer == "yes"
		},
	}

	outcome, err := svc.Run(ctx, fs.Arg(0), hooks)
	if err != nil {
		var validation *media.ValidationError
		switch {
		case errors.As(err, &validation):
			return errors.New(validation.Message)
		case errors.Is(err, upload.ErrCancelled):
			fmt.Fprintln(r.stdout, "Upload cancelled")
			return nil
		default:
			return fmt.Errorf("upload failed: %s", describeAPIError(err))
		}
	}

	fmt.Fprintf(r.stdout, "Uploaded %s as video %s (%s)\n", outcome.Result.File.Name, outcome.Verification.VideoID, outcome.Verification.Status)
	if !*wait {
		return nil
	}
	return r.printClips(ctx, cfg, env, outcome.Verification.VideoID, true)
}

func (r *runner) clips(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("clips", flag.ContinueOnError)
	fs.SetOutput(r.stderr)
	wait := fs.Bool("wait", false, "poll until clips are available")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: clipforge clips [--wait] <video id>")
	}

	env, err := r.openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	return r.printClips(ctx, cfg, env, fs.Arg(0), *wait)
}

func (r *runner) printClips(ctx context.Context, cfg config.Config, env *clientEnv, videoID string, wait bool) error {
	svc := clips.NewService(env.api, env.logger)

	var (
		list []clips.Clip
		err  error
	)
	if wait {
		fmt.Fprintln(r.stdout, "Waiting for clips...")
		list, err = svc.Wait(ctx, videoID, cfg.Client.PollInterval, fatalClientError)
	} else {
		list, err = svc.List(ctx, videoID)
	}
	if err != nil {
		return fmt.Errorf("unable to load clips: %s", describeAPIError(err))
	}

	if len(list) == 0 {
		fmt.Fprintln(r.stdout, "No clips yet")
		return nil
	}

	tw := tabwriter.NewWriter(r.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tDURATION\tURL")
	for _, clip := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", clip.ID, clip.Title, clip.Duration, clip.VideoURL)
	}
	return tw.Flush()
}

func (r *runner) videos(ctx context.Context, cfg config.Config) error {
	env, err := r.openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	list, err := clips.NewService(env.api, env.logger).Videos(ctx)
	if err != nil {
		return fmt.Errorf("unable to load videos: %s", describeAPIError(err))
	}
	if len(list) == 0 {
		fmt.Fprintln(r.stdout, "No videos yet")
		return nil
	}

	tw := tabwriter.NewWriter(r.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILE\tSTATUS\tDURATION\tCLIPS\tUPLOADED")
	for _, v := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", v.ID, v.Filename, v.Status, clips.FormatDuration(v.DurationSec), v.ClipCount, humanize.Time(v.CreatedAt))
	}
	return tw.Flush()
}

func newProcessor(cfg config.Config, logger *slog.Logger) *media.Processor {
	limits := media.Limits{
		AllowedExtensions: cfg.Limits.AllowedExtensions,
		MaxBytes:          cfg.Limits.MaxBytes,
		MaxDuration:       cfg.Limits.MaxDuration,
	}
	thumb := media.ThumbnailOptions{
		Width:   cfg.Limits.ThumbnailWidth,
		Height:  cfg.Limits.ThumbnailHeight,
		Offset:  cfg.Limits.ThumbnailOffset,
		Quality: cfg.Limits.ThumbnailQuality,
	}
	return media.NewProcessor(
		limits,
		media.NewFFprobe(cfg.Limits.FFprobePath, cfg.Limits.ProbeTimeout),
		media.NewFFmpeg(cfg.Limits.FFmpegPath, cfg.Limits.FrameTimeout),
		thumb,
		logger,
	)
}

func newBlobWriter(cfg config.Config) upload.BlobWriter {
	if strings.EqualFold(cfg.Client.BlobBackend, "azure") {
		return upload.AzureBlobWriter{BlockSize: azureBlockSize, Concurrency: 4}
	}
	return upload.NewHTTPBlobWriter(cfg.Client.BlobTimeout)
}

// fatalClientError stops clip polling for errors that retrying cannot fix.
func fatalClientError(err error) bool {
	if errors.Is(err, apiclient.ErrSessionExpired) || errors.Is(err, apiclient.ErrNoRefreshToken) {
		return true
	}
	switch apiclient.StatusCode(err) {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// describeAPIError prefers the server's error message over the transport detail.
func describeAPIError(err error) string {
	var httpErr *apiclient.HTTPError
	if errors.As(err, &httpErr) {
		if msg := httpErr.Message(); msg != "" {
			return msg
		}
	}
	if errors.Is(err, apiclient.ErrSessionExpired) || errors.Is(err, apiclient.ErrNoRefreshToken) {
		return "session expired, sign in again"
	}
	return err.Error()
}
