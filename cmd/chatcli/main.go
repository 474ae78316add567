package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"ad-assistant/backend/internal/timeline"
	"ad-assistant/backend/pkg/ws"

	"github.com/gorilla/websocket"
)

type frame struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

func main() {
	baseURL := flag.String("base", "http://localhost:8081", "Server base URL")
	userID := flag.String("user", "", "User id to request a development token for")
	token := flag.String("token", "", "Bearer token (skips the development token request)")
	send := flag.String("send", "", "Send one message, print the result and exit")
	helpPtr := flag.Bool("help", false, "Show usage information")
	flag.Parse()

	if *helpPtr || (*userID == "" && *token == "") {
		fmt.Println("Chat CLI Usage:")
		fmt.Println("  -base URL     Server base URL (default http://localhost:8081)")
		fmt.Println("  -user ID      Request a development token for this user")
		fmt.Println("  -token JWT    Use an existing bearer token")
		fmt.Println("  -send TEXT    Send one message and exit; without it lines from stdin are sent")
		fmt.Println("  -help         Show this help message")
		os.Exit(0)
	}

	if *token == "" {
		t, err := devToken(*baseURL, *userID)
		if err != nil {
			log.Fatalf("Error requesting token: %v", err)
		}
		*token = t
	}

	conn, err := dial(*baseURL, *token)
	if err != nil {
		log.Fatalf("Error connecting to WebSocket: %v", err)
	}
	defer conn.Close()
	log.Println("Connected to WebSocket")

	results := make(chan frame, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("WebSocket read error: %v", err)
				}
				return
			}
			printFrame(f)
			switch f.Type {
			case ws.TypeSendResult, ws.TypeBlocked, ws.TypeError:
				select {
				case results <- f:
				default:
				}
			}
		}
	}()

	if *send != "" {
		if err := sendChat(conn, *send); err != nil {
			log.Fatalf("Error sending message: %v", err)
		}
		select {
		case <-results:
		case <-done:
		case <-time.After(3 * time.Minute):
			log.Println("Timed out waiting for a reply")
		}
		closeConn(conn, done)
		return
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	log.Println("Type a message and press enter. Press Ctrl+C to exit...")
	for {
		select {
		case <-done:
			return
		case line, ok := <-lines:
			if !ok {
				closeConn(conn, done)
				return
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := sendChat(conn, line); err != nil {
				log.Printf("Error sending message: %v", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteJSON(ws.Message{Type: ws.TypePing}); err != nil {
				log.Printf("Error writing ping: %v", err)
				return
			}
		case <-interrupt:
			log.Println("Interrupt received, shutting down...")
			closeConn(conn, done)
			return
		}
	}
}

func devToken(baseURL, userID string) (string, error) {
	body, err := json.Marshal(map[string]string{"user_id": userID})
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}
	resp, err := http.Post(baseURL+"/api/v1/auth/dev-token", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("error response: %s, status: %d", string(bodyBytes), resp.StatusCode)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("error decoding response: %w", err)
	}
	return result.Token, nil
}

func dial(baseURL, token string) (*websocket.Conn, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	return conn, err
}

func sendChat(conn *websocket.Conn, text string) error {
	return conn.WriteJSON(ws.Message{Type: ws.TypeChat, Content: map[string]string{"content": text}})
}

func closeConn(conn *websocket.Conn, done <-chan struct{}) {
	err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		log.Printf("Error during closing websocket: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

// printFrame prints one server frame. Streaming frames overwrite the current
// line so the reply appears to type itself out.
func printFrame(f frame) {
	switch f.Type {
	case string(timeline.EventStreaming):
		var ev timeline.Event
		if err := json.Unmarshal(f.Content, &ev); err != nil {
			return
		}
		fmt.Printf("\r< %s", ev.Text)
		if ev.Done {
			fmt.Println()
		}
	case ws.TypeError:
		// error frames come from the socket handler or the timeline
		var e struct {
			Message string `json:"message"`
			Text    string `json:"text"`
		}
		_ = json.Unmarshal(f.Content, &e)
		if e.Message == "" {
			e.Message = e.Text
		}
		fmt.Printf("! %s\n", e.Message)
	case ws.TypeBlocked:
		fmt.Println("! Free plan limit reached, upgrade to keep chatting")
	case ws.TypePong:
	default:
		fmt.Printf("[%s] %s\n", f.Type, string(f.Content))
	}
}
