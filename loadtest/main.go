// Load harness: connects pairs of websocket clients and has each side spam
// send_message at the other, counting delivered chat_message events.
// User rows 1..2*pairs must already exist; tokens are minted locally with
// the server's JWT secret.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

var (
	wsURL    = flag.String("url", "ws://localhost:8080/ws", "websocket endpoint")
	secret   = flag.String("secret", "dev-secret", "JWT secret shared with the server")
	pairs    = flag.Int("pairs", 50, "number of user pairs")
	msgCount = flag.Int("messages", 20, "messages per user")
)

var received atomic.Int64

type claims struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func main() {
	flag.Parse()
	log.Printf("starting load test: %d users, %d messages each", *pairs*2, *msgCount)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < *pairs; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}
	wg.Wait()

	elapsed := time.Since(start)
	sent := int64(*pairs) * 2 * int64(*msgCount)
	log.Printf("done in %s: sent %d, received %d (%.1f%%)",
		elapsed, sent, received.Load(), 100*float64(received.Load())/float64(sent))
}

func runPair(pairID int) {
	idA := int64(pairID*2 + 1)
	idB := int64(pairID*2 + 2)

	var wg sync.WaitGroup
	wg.Add(2)
	go chat(&wg, idA, idB)
	go chat(&wg, idB, idA)
	wg.Wait()
}

func chat(wg *sync.WaitGroup, self, peer int64) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(*wsURL+"?token="+mintToken(self), nil)
	if err != nil {
		log.Printf("user %d: dial failed: %v", self, err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		for n := 0; n < *msgCount; n++ {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ev struct {
				Type string `json:"type"`
			}
			if json.Unmarshal(data, &ev) == nil && ev.Type == "chat_message" {
				received.Add(1)
			}
		}
	}()

	for n := 0; n < *msgCount; n++ {
		envelope := fmt.Sprintf(`{"action":"send_message","to":%d,"message":"msg %d from %d"}`, peer, n, self)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(envelope)); err != nil {
			log.Printf("user %d: write failed: %v", self, err)
			return
		}
	}

	<-done
}

func mintToken(id int64) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		ID:       id,
		Username: fmt.Sprintf("loadtest_%d", id),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(*secret))
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	return signed
}
