// Command inspect_store prints the enrolled face users and their conversation
// history straight from the JSON documents. It never writes.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"

	"companion-be/internal/pkg/logger"
	"companion-be/pkg/conversation"
	"companion-be/pkg/facestore"
)

func main() {
	dataDir := flag.String("data", "data", "data directory")
	userID := flag.String("user", "", "show the full history of one user")
	flag.Parse()

	faces, err := facestore.Open(filepath.Join(*dataDir, "face_descriptors.json"), 0)
	if err != nil {
		color.Red("open face store: %v", err)
		os.Exit(1)
	}
	convs, err := conversation.Open(filepath.Join(*dataDir, "conversations.json"), conversation.Options{}, logger.NewNopLogger())
	if err != nil {
		color.Red("open conversation store: %v", err)
		os.Exit(1)
	}

	if *userID != "" {
		printHistory(*userID, convs.History(*userID))
		return
	}

	users := faces.List()
	color.Cyan("%d face users in %s", len(users), faces.Path())
	for _, u := range users {
		name := u.Name
		if !u.HasName() {
			name = color.YellowString("(unnamed)")
		}
		fmt.Printf("  %-8s %-20s visits=%-4d samples=%d last_seen=%s\n",
			u.ID, name, u.VisitCount, len(u.Descriptors), u.LastSeen.Format("2006-01-02 15:04"))
	}

	st := convs.Stats()
	color.Cyan("\nconversations: %d users, %d sessions (%d active), %d messages",
		st.Users, st.Sessions, st.ActiveSessions, st.Messages)
	if !st.LastSavedAt.IsZero() {
		fmt.Printf("  last saved %s\n", st.LastSavedAt.Format("2006-01-02 15:04:05"))
	}
}

func printHistory(userID string, sessions []conversation.Session) {
	if len(sessions) == 0 {
		color.Yellow("no conversations for %s", userID)
		return
	}
	for _, s := range sessions {
		state := "ended"
		if s.IsActive {
			state = "active"
		}
		color.Cyan("session %s (%s) started %s", s.ID, state, s.StartedAt.Format("2006-01-02 15:04"))
		for _, m := range s.Messages {
			line := fmt.Sprintf("  %s %-9s %s", m.Timestamp.Format("15:04:05"), m.Role, m.Content)
			if m.Role == conversation.RoleAssistant {
				color.Green("%s", line)
			} else {
				fmt.Println(line)
			}
		}
	}
}
