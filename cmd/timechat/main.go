package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"timechat/internal/api"
	"timechat/internal/audio"
	"timechat/internal/chat"
	"timechat/internal/config"
	"timechat/internal/kvstore"
	"timechat/internal/scheduler"
	"timechat/internal/titles"
	"timechat/internal/transcript"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := newStore(cfg)
	if err != nil {
		log.Fatalf("failed to init durable store: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()

	client := api.NewClient(cfg.APIBaseURL, cfg.APIToken)

	var rec chat.Recorder
	if cfg.TranscriptLogPath != "" {
		fr, err := transcript.NewFileRecorder(cfg.TranscriptLogPath)
		if err != nil {
			log.Printf("failed to init exchange log: %v", err)
		} else {
			rec = fr
		}
	}

	locks := chat.NewExchangeLock()
	notifier := chat.LogNotifier{}

	ctrl := chat.NewController(chat.Options{
		Backend:            client,
		BotID:              cfg.BotID,
		Username:           cfg.Username,
		Notifier:           notifier,
		Locks:              locks,
		Recorder:           rec,
		SessionUnitMinutes: cfg.SessionUnitMinutes,
		StreamInterval:     cfg.StreamInterval(),
		OnAssistant: func(_, content string, done bool) {
			if done {
				fmt.Printf("\nassistant: %s\n> ", content)
			}
		},
		OnTick: func(remaining int) {
			if remaining == 60 {
				notifier.Notify(chat.NoticeWarning, "one minute of session time remaining")
			}
		},
		OnStateChange: func(s chat.State) {
			switch s {
			case chat.StateContinuationOffered:
				fmt.Print("\nsession time is up - type /continue to keep going\n> ")
			case chat.StateExpiredTerminal:
				fmt.Print("\nsession time is up - type /buy to purchase more\n> ")
			}
		},
	})
	defer ctrl.Close()

	transcriber := newTranscriber(cfg, client)
	pipeline := audio.NewPipeline(audio.NewFileCapture(cfg.AudioInputPath), transcriber, ctrl, notifier)
	ctrl.SetRecordingCanceller(pipeline.Cancel)

	queue := titles.NewQueue(store, client, locks, titles.Options{
		DefaultTitle: cfg.DefaultTitle,
		MaxRunes:     cfg.TitleMaxRunes,
	})
	if err := queue.Restore(ctx); err != nil {
		log.Printf("failed to restore title queue: %v", err)
	}
	go queue.Run(ctx)

	scanner := titles.NewScanner(client, queue, cfg.Username, 10)
	sched := scheduler.New()
	sched.SetScanFunction(scanner.ScanAll)
	if err := sched.Start(cfg.TitleScanSpec); err != nil {
		log.Printf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	if err := ctrl.StartNew(ctx); err != nil {
		log.Fatalf("failed to start session: %v", err)
	}
	log.Printf("🗨️ session %s started, %ds remaining", ctrl.SessionID(), ctrl.Remaining())

	runREPL(ctx, ctrl, pipeline, scanner, sched)
}

func runREPL(ctx context.Context, ctrl *chat.Controller, pipeline *audio.Pipeline, scanner *titles.Scanner, sched *scheduler.Scheduler) {
	in := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		switch {
		case line == "":
		case line == "/quit":
			return
		case line == "/time":
			fmt.Printf("%ds remaining\n", ctrl.Remaining())
		case line == "/status":
			fmt.Printf("state=%s phase=%s remaining=%ds scan-scheduled=%v\n",
				ctrl.State(), ctrl.Phase(), ctrl.Remaining(), sched.IsRunning())
		case line == "/record":
			if err := pipeline.StartRecording(ctx); err != nil {
				log.Printf("record: %v", err)
			}
		case line == "/stop":
			if err := pipeline.StopAndSend(ctx); err != nil {
				log.Printf("stop: %v", err)
			}
		case line == "/continue":
			if err := ctrl.AcceptContinuation(ctx); err != nil {
				log.Printf("continue: %v", err)
			} else {
				log.Printf("🗨️ session resumed, %ds remaining", ctrl.Remaining())
			}
		case line == "/buy":
			res, err := ctrl.Purchase(ctx)
			if err != nil {
				log.Printf("purchase: %v", err)
			} else {
				log.Printf("💰 %s (%d minutes available)", res.Message, res.AvailableMinutes)
			}
		case line == "/sessions":
			listings, err := scanner.List(ctx, 0)
			if err != nil {
				log.Printf("sessions: %v", err)
				break
			}
			for _, l := range listings {
				fmt.Printf("%s  %s  %s\n", l.ID, l.LastMessageTime.Format("2006-01-02 15:04"), l.Title)
			}
		default:
			if err := ctrl.Send(ctx, line); err != nil && !errors.Is(err, api.ErrSessionExpired) {
				log.Printf("send: %v", err)
			}
		}
		fmt.Print("> ")
	}
}

func newStore(cfg *config.Config) (kvstore.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		return kvstore.NewSQLiteStore(cfg.SQLitePath)
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		return kvstore.NewRedisStore(client), nil
	default:
		return kvstore.NewFileStore(cfg.StorePath)
	}
}

func newTranscriber(cfg *config.Config, client *api.Client) audio.Transcriber {
	if cfg.Transcriber == config.TranscriberWhisper && cfg.OpenAIAPIKey != "" {
		return audio.NewWhisper(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.WhisperModel)
	}
	return client
}
