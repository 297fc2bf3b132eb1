// Package main implements a small terminal chat client for the relay
// server: it logs in, then streams answers for each typed query.
package main

import (
	"bufio"
	"bytes"
	"cmp"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
)

const (
	apiLogin = "/api/v1/auth/login"
	apiChat  = "/api/v1/chat"
)

var (
	version   string
	buildDate string
)

// login obtains a bearer token for the given credentials.
func login(client *http.Client, baseURL, username, password string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", err
	}

	resp, err := client.Post(baseURL+apiLogin, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("login failed (%d): %s", resp.StatusCode, detail)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

// chatEvent is the subset of the streamed event payload the client
// renders.
type chatEvent struct {
	Event          string `json:"event"`
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
}

// chat sends one query and prints answer chunks as they arrive.
// It returns the conversation id so follow-up queries stay in the same
// conversation.
func chat(client *http.Client, baseURL, token, query, conversationID string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"query":           query,
		"conversation_id": conversationID,
	})
	if err != nil {
		return conversationID, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+apiChat, bytes.NewReader(body))
	if err != nil {
		return conversationID, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return conversationID, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return conversationID, fmt.Errorf("chat failed (%d): %s", resp.StatusCode, detail)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event chatEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			continue
		}
		if event.Answer != "" {
			fmt.Print(event.Answer)
		}
		if event.ConversationID != "" {
			conversationID = event.ConversationID
		}
	}
	fmt.Println()
	return conversationID, scanner.Err()
}

// repl runs the interactive loop, sending each typed line as a query.
func repl(client *http.Client, baseURL, token string) {
	scanner := bufio.NewScanner(os.Stdin)
	conversationID := ""

	for {
		fmt.Print("dify-relay> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch line {
		case "help":
			fmt.Println("Type a message to chat. Commands: help, new (start a fresh conversation), exit")
		case "new":
			conversationID = ""
			fmt.Println("Started a new conversation")
		case "exit":
			return
		default:
			id, err := chat(client, baseURL, token, line, conversationID)
			if err != nil {
				fmt.Println("Error:", err)
				continue
			}
			conversationID = id
		}
	}
}

func main() {
	addr := flag.String("a", "http://localhost:8080", "relay server base URL")
	username := flag.String("u", "", "username")
	password := flag.String("p", "", "password")
	flag.Parse()

	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	if *username == "" || *password == "" {
		log.Fatal("both -u and -p are required")
	}

	client := &http.Client{}
	token, err := login(client, *addr, *username, *password)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("Logged in as", *username)
	repl(client, *addr, token)
}
