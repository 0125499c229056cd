// Package main runs a demo WebSocket client that starts an async plan and
// prints its progress events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	body := []byte(`{"async":true,"strategy":"network","records":[
		{"orderId":"o1","job":"kimchi","quantity":120},{"orderId":"o1","job":"bulgogi","quantity":40},
		{"orderId":"o2","job":"kimchi","quantity":60},{"orderId":"o2","job":"japchae","quantity":25},
		{"orderId":"o3","job":"bulgogi","quantity":30},{"orderId":"o3","job":"japchae","quantity":10}]}`)
	resp, err := http.Post(base+"/v1/plans", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var acc struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&acc); err != nil || acc.ID == "" {
		log.Fatalf("plan not accepted: status=%d err=%v", resp.StatusCode, err)
	}
	log.Printf("Plan ID: %s", acc.ID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/plans/" + acc.ID + "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			return
		}
		log.Printf("%s %v", msg.Type, msg.Data)
		if msg.Type == "plan.completed" || msg.Type == "plan.failed" {
			return
		}
	}
}
