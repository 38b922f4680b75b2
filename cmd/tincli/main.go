// Command-line chat client. Connects to the server, authenticates,
// attaches to the contact list and optionally to one topic, prints
// incoming messages and sends lines typed on stdin.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tinode/jsonco"

	"github.com/tinode/go-client/client"
	"github.com/tinode/go-client/logs"
	"github.com/tinode/go-client/types"
)

type configType struct {
	Host          string `json:"host"`
	APIKey        string `json:"api_key"`
	Transport     string `json:"transport"`
	Secure        bool   `json:"secure"`
	Login         string `json:"login"`
	Password      string `json:"password"`
	DeviceID      string `json:"device_id"`
	AutoReconnect bool   `json:"auto_reconnect"`
}

func loadConfig(path string) (*configType, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := &configType{
		Host:          "localhost:6060",
		Transport:     "ws",
		AutoReconnect: true,
	}
	jr := jsonco.New(file)
	if err = json.NewDecoder(jr).Decode(config); err != nil {
		return nil, err
	}
	return config, nil
}

func main() {
	configFile := flag.String("config", "tincli.conf", "Path to config file.")
	topicName := flag.String("topic", "", "Topic to attach to.")
	listenOnly := flag.Bool("listen", false, "Do not read stdin, just print incoming messages.")
	flag.Parse()

	config, err := loadConfig(*configFile)
	if err != nil {
		logs.Err.Fatal("failed to read config file:", err)
	}
	if config.DeviceID == "" {
		config.DeviceID = uuid.NewString()
	}

	done := make(chan struct{})
	sess, err := client.NewClient(
		client.Config{
			AppName:       "TinCLI",
			Host:          config.Host,
			APIKey:        config.APIKey,
			Transport:     config.Transport,
			Secure:        config.Secure,
			AutoReconnect: config.AutoReconnect,
			DeviceID:      config.DeviceID,
		},
		client.Events{
			OnConnect: func(code int, text string, params map[string]any) {
				logs.Info.Println("connected:", code, text)
			},
			OnLogin: func(code int, text string) {
				logs.Info.Println("login:", code, text)
			},
			OnDisconnect: func(err *types.NetworkError) {
				logs.Warn.Println("disconnected:", err)
				if err.IsUserDisconnect() {
					close(done)
				}
			},
			OnAutoReconnect: func(delay time.Duration) {
				if delay > 0 {
					logs.Info.Println("reconnecting in", delay)
				}
			},
		})
	if err != nil {
		logs.Err.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = sess.Connect(ctx); err != nil {
		logs.Err.Fatal("failed to connect:", err)
	}
	if _, err = sess.LoginBasic(ctx, config.Login, config.Password); err != nil {
		logs.Err.Fatal("failed to login:", err)
	}

	me := sess.GetMeTopic()
	me.SetCallbacks(client.TopicCallbacks{
		OnContactUpdate: func(what string, sub *client.Subscription) {
			logs.Info.Println("contact", sub.Topic, what, "unread:", sub.UnreadCount)
		},
	})
	query := me.NewMetaGetBuilder().WithLaterDesc().WithLaterSub(0).WithCred().Build()
	if err = me.Subscribe(ctx, nil, query); err != nil {
		logs.Err.Fatal("failed to attach to 'me':", err)
	}
	me.ForEachSubscription(func(name string, sub *client.Subscription) {
		logs.Info.Println("contact:", name, "unread:", sub.UnreadCount)
	})

	if *topicName == "" {
		<-done
		return
	}

	topic := sess.Topic(*topicName)
	topic.SetCallbacks(client.TopicCallbacks{
		OnData: func(msg *client.Message) {
			if msg == nil || msg.IsGap() {
				return
			}
			logs.Info.Printf("[%s] %s: %v", msg.Topic, msg.From, msg.Content)
			topic.NoteRead(msg.Seq)
		},
	})
	query = topic.NewMetaGetBuilder().WithLaterDesc().WithLaterData(24).Build()
	if err = topic.Subscribe(ctx, nil, query); err != nil {
		logs.Err.Fatal("failed to attach to topic:", err)
	}

	if *listenOnly {
		<-done
		return
	}

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			pubCtx, pubCancel := context.WithTimeout(context.Background(), 10*time.Second)
			if _, err := topic.Publish(pubCtx, line); err != nil {
				logs.Warn.Println("failed to publish:", err)
			}
			pubCancel()
		}
		sess.Close()
	}()

	<-done
}
