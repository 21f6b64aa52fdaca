package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/zhouzirui/z-chat/internal/config"
	"github.com/zhouzirui/z-chat/internal/service/stream"
)

// chatprobe 直接连上游流式接口，打印每条解析后的记录，方便排查线上协议问题。
func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	message := flag.String("message", "", "发送的消息文本")
	conversation := flag.String("conversation", "", "会话 ID，留空则由服务端新建")
	timeout := flag.Duration("timeout", 60*time.Second, "整个探测的超时时间")
	flag.Parse()

	if strings.TrimSpace(*message) == "" {
		flag.Usage()
		log.Fatal("请通过 -message 提供待发送的消息")
	}

	client := stream.NewClient(cfg.Upstream.URL, cfg.Upstream.Token, cfg.Upstream.HeaderTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	log.Printf("连接上游: %s", cfg.Upstream.URL)

	handle, err := client.Open(ctx, stream.Request{
		Query:          *message,
		ConversationID: *conversation,
	})
	if err != nil {
		log.Fatalf("打开流失败: %v", err)
	}
	defer handle.Cancel()

	var chunks int
	for ev := range handle.Events() {
		switch ev.Type {
		case stream.EventOpened:
			log.Println("已连接，开始接收记录")
		case stream.EventError:
			log.Fatalf("传输错误: %v", ev.Err)
		case stream.EventClosed:
			log.Printf("流结束，共 %d 个内容块", chunks)
			return
		case stream.EventRecord:
			rec := stream.ParseRecord(ev.Data)
			switch rec.Kind {
			case stream.RecordMalformed:
				log.Printf("[WARN] 无法解析的记录: %s", ev.Data)
			case stream.RecordServerError:
				log.Fatalf("服务端错误 status=%d: %s", rec.Status, rec.ErrMessage)
			case stream.RecordEnd:
				log.Printf("收到结束记录 conversation=%s，共 %d 个内容块", rec.ConversationID, chunks)
				return
			case stream.RecordContent:
				chunks++
				if rec.ConversationID != "" {
					log.Printf("conversation=%s", rec.ConversationID)
				}
				fmt.Fprint(os.Stdout, rec.Answer)
			}
		}
	}
}
