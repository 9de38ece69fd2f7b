package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

type outbound struct {
	Type      string `json:"type"`
	Body      string `json:"body"`
	MessageID string `json:"message_id"`
	Reaction  string `json:"reaction"`
}

type response struct {
	ConversationID string     `json:"conversation_id"`
	Replies        []outbound `json:"replies"`
}

var client = &http.Client{Timeout: 30 * time.Second}

func main() {
	server := flag.String("server", "http://localhost:3210", "weatherbot server URL")
	user := flag.String("user", "cli-user", "User name for chat")
	conversation := flag.String("conversation", "", "Conversation ID (default: random)")
	flag.Parse()

	if *conversation == "" {
		*conversation = "cli-" + uuid.New().String()[:8]
	}

	fmt.Println("weatherbot CLI chat")
	fmt.Printf("Server: %s | User: %s | Conversation: %s\n", *server, *user, *conversation)
	fmt.Println("Type 'exit' or 'quit' to leave. Local commands: :status, :mailbox <conversation>")
	fmt.Println("---")

	connect(*server, *user, *conversation)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Bye!")
			return
		}
		if input == ":status" {
			fetchStatus(*server)
			continue
		}
		if target, ok := strings.CutPrefix(input, ":mailbox"); ok {
			target = strings.TrimSpace(target)
			if target == "" {
				target = *conversation
			}
			fetchMailbox(*server, target)
			continue
		}

		sendMessage(*server, *user, *conversation, input)
	}
}

func connect(server, user, conversation string) {
	resp, err := post(server+"/api/gateway/rest/connect", map[string]string{
		"conversation_id": conversation,
		"user_id":         user,
	})
	if err != nil {
		printError("Connect failed: %v", err)
		return
	}
	printReplies(resp.Replies)
}

func fetchStatus(server string) {
	resp, err := client.Get(server + "/api/gateway/status")
	if err != nil {
		printError("Failed to fetch status: %v", err)
		return
	}
	defer resp.Body.Close()

	var statuses []struct {
		Platform  string `json:"platform"`
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
		Details   string `json:"details,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&statuses); err != nil {
		printError("Failed to parse status: %v", err)
		return
	}
	fmt.Println("Gateway Status:")
	for _, s := range statuses {
		icon := "\033[31m✗\033[0m"
		if s.Connected {
			icon = "\033[32m✓\033[0m"
		}
		fmt.Printf("  %s %s", icon, s.Platform)
		if s.Details != "" {
			fmt.Printf(" (%s)", s.Details)
		}
		if s.Error != "" {
			fmt.Printf(" \033[31m(%s)\033[0m", s.Error)
		}
		fmt.Println()
	}
}

func fetchMailbox(server, conversation string) {
	resp, err := client.Get(server + "/api/gateway/rest/mailbox/" + conversation)
	if err != nil {
		printError("Failed to fetch mailbox: %v", err)
		return
	}
	defer resp.Body.Close()

	var box []outbound
	if err := json.NewDecoder(resp.Body).Decode(&box); err != nil {
		printError("Failed to parse mailbox: %v", err)
		return
	}
	if len(box) == 0 {
		fmt.Println("(mailbox empty)")
		return
	}
	printReplies(box)
}

func sendMessage(server, user, conversation, content string) {
	resp, err := post(server+"/api/gateway/rest/message", map[string]string{
		"conversation_id": conversation,
		"user_id":         user,
		"user_name":       user,
		"content":         content,
	})
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	if len(resp.Replies) == 0 {
		fmt.Println("\033[90m(no reply)\033[0m")
		return
	}
	printReplies(resp.Replies)
}

func post(url string, payload interface{}) (*response, error) {
	body, _ := json.Marshal(payload)
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, string(data))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &out, nil
}

func printReplies(replies []outbound) {
	for _, r := range replies {
		switch r.Type {
		case "reaction":
			fmt.Printf("\033[90m[%s]\033[0m\n", r.Reaction)
		default:
			fmt.Println(r.Body)
		}
	}
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
