// Command simulation plays a kiosk against a running server: it joins a room,
// reports a detected user and forwards typed lines as user messages.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
)

type event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func send(conn *websocket.Conn, typ string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(event{Type: typ, Data: raw})
}

func printEvent(e event) {
	var body map[string]interface{}
	_ = json.Unmarshal(e.Data, &body)

	switch e.Type {
	case "robot_message":
		color.Green("robot [%v]: %v", body["state"], body["text"])
	case "animation":
		audio, _ := body["audio"].(string)
		color.Cyan("animation %v (audio: %d bytes base64)", body["state"], len(audio))
	case "registration_success":
		color.Magenta("registered %v as %v", body["userId"], body["userName"])
	case "error":
		color.Red("error %v: %v", body["code"], body["message"])
	default:
		color.Yellow("%s %s", e.Type, string(e.Data))
	}
}

func main() {
	server := flag.String("server", "ws://localhost:3000/api/ws", "websocket endpoint")
	room := flag.String("room", "lobby", "room to join")
	userID := flag.String("user", "user1", "user id to report as detected")
	name := flag.String("name", "", "known user name, empty for an unnamed user")
	flag.Parse()

	u, err := url.Parse(*server)
	if err != nil {
		color.Red("bad server url: %v", err)
		os.Exit(1)
	}
	q := u.Query()
	q.Set("room", *room)
	q.Set("role", "client")
	u.RawQuery = q.Encode()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		color.Red("dial websocket: %v", err)
		os.Exit(1)
	}
	defer conn.Close()
	color.Cyan("connected to %s", u.String())

	go func() {
		for {
			var e event
			if err := conn.ReadJSON(&e); err != nil {
				color.Red("connection closed: %v", err)
				stop()
				return
			}
			printEvent(e)
		}
	}()

	err = send(conn, "user_detected", map[string]interface{}{
		"userId":              *userID,
		"userName":            *name,
		"needsIdentification": *name == "",
		"isNewUser":           *name == "",
		"consensusRatio":      1.0,
	})
	if err != nil {
		color.Red("send user_detected: %v", err)
		os.Exit(1)
	}

	fmt.Println("Type a message and press enter. /lost reports the user gone, Ctrl+C quits.")
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		stop()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case line := <-lines:
			line = strings.TrimSpace(line)
			switch {
			case line == "":
				continue
			case line == "/lost":
				err = send(conn, "user_lost", map[string]string{"userId": *userID})
			default:
				err = send(conn, "user_message", map[string]string{"text": line})
			}
			if err != nil {
				color.Red("send: %v", err)
			}
		}
	}
}
