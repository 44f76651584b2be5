// Command participant hosts or joins a live meditation session from the
// terminal, driving the signaling agent without a browser.
package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mindhaven/signaling/internal/agent"
	"github.com/mindhaven/signaling/internal/models"
)

var (
	serverURL   string
	displayName string
	stunServers string
)

var rootCmd = &cobra.Command{
	Use:   "participant",
	Short: "Headless participant for live meditation sessions",
}

var hostCmd = &cobra.Command{
	Use:   "host [name]",
	Short: "Create and host a session, driving the shared timer",
	Args:  cobra.ExactArgs(1),
	RunE:  runHost,
}

var joinCmd = &cobra.Command{
	Use:   "join [sessionId]",
	Short: "Join an existing session by ID",
	Args:  cobra.ExactArgs(1),
	RunE:  runJoin,
}

var (
	hostDuration    int
	hostDescription string
	autoStart       bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "signaling server base URL")
	rootCmd.PersistentFlags().StringVar(&displayName, "name", "", "display name shown to other participants")
	rootCmd.PersistentFlags().StringVar(&stunServers, "stun", "stun:stun.l.google.com:19302", "comma-separated STUN server URLs")

	hostCmd.Flags().IntVar(&hostDuration, "duration", 10, "meditation length in minutes")
	hostCmd.Flags().StringVar(&hostDescription, "description", "", "session description")
	hostCmd.Flags().BoolVar(&autoStart, "start", false, "start the timer as soon as a participant joins")

	rootCmd.AddCommand(hostCmd)
	rootCmd.AddCommand(joinCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func runHost(cmd *cobra.Command, args []string) error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	sessionID := uuid.New().String()
	rec := models.SessionRecord{
		SessionID:       sessionID,
		Name:            args[0],
		Description:     hostDescription,
		DurationMinutes: hostDuration,
		CreatedAt:       time.Now(),
	}

	a, err := agent.New(agent.Options{
		ServerURL:   serverURL,
		SessionID:   sessionID,
		DisplayName: displayName,
		Host:        true,
		Session:     &rec,
		ICEServers:  splitList(stunServers),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Hosting session %s (%d min). Share this ID for others to join.\n", sessionID, hostDuration)
	return runLoop(ctx, a, autoStart)
}

func runJoin(cmd *cobra.Command, args []string) error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := agent.New(agent.Options{
		ServerURL:   serverURL,
		SessionID:   args[0],
		DisplayName: displayName,
		ICEServers:  splitList(stunServers),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Close()

	rec := a.Session()
	fmt.Printf("Joined %q (%d min), hosted by %s.\n", rec.Name, rec.DurationMinutes, rec.HostID)
	return runLoop(ctx, a, false)
}

// runLoop prints timer and roster state once a second until interrupted.
func runLoop(ctx context.Context, a *agent.Agent, startOnJoin bool) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	started := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if startOnJoin && !started && len(a.Roster().List()) > 0 {
				if err := a.StartTimer(ctx); err != nil {
					return err
				}
				started = true
			}
			printStatus(a)
		}
	}
}

func printStatus(a *agent.Agent) {
	t := a.Timer()
	remaining := t.Remaining()
	switch t.Phase() {
	case models.TimerCountdown:
		fmt.Printf("\rstarting in %d...          ", t.CountdownStep())
	case models.TimerRunning:
		fmt.Printf("\rmeditating  %02d:%02d  (%d here)", remaining/60, remaining%60, len(a.Roster().List())+1)
	case models.TimerPaused:
		fmt.Printf("\rpaused      %02d:%02d          ", remaining/60, remaining%60)
	case models.TimerCompleted:
		fmt.Printf("\rsession complete            ")
	default:
		fmt.Printf("\rwaiting     (%d here)        ", len(a.Roster().List())+1)
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
