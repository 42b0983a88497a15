package kafka

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"Cirkle/backend/go/internal/config"

	"github.com/segmentio/kafka-go"
)

const dialTimeout = 10 * time.Second

// EnsureTopics 确保配置中的主题都已存在，不存在的主题在控制器上创建。
func EnsureTopics(ctx context.Context, cfg *config.KafkaConfig) (created []string, err error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("未配置 Kafka brokers")
	}
	topics := cfg.Topics()
	if len(topics) == 0 {
		return nil, fmt.Errorf("未配置 Kafka topics")
	}

	dialer := &kafka.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		return nil, fmt.Errorf("kafka 初始化连接失败: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return nil, fmt.Errorf("无法读取 Kafka 分区信息: %w", err)
	}
	existing := make(map[string]struct{}, len(partitions))
	for _, p := range partitions {
		existing[p.Topic] = struct{}{}
	}

	var toCreate []kafka.TopicConfig
	for _, topic := range topics {
		if _, ok := existing[topic]; ok {
			continue
		}
		toCreate = append(toCreate, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
		created = append(created, topic)
	}
	if len(toCreate) == 0 {
		return nil, nil
	}

	// 主题只能在控制器节点上创建。
	controller, err := conn.Controller()
	if err != nil {
		return nil, fmt.Errorf("无法获取 Kafka 控制器: %w", err)
	}
	ctrlConn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return nil, fmt.Errorf("无法连接 Kafka 控制器: %w", err)
	}
	defer ctrlConn.Close()

	if err := ctrlConn.CreateTopics(toCreate...); err != nil {
		return nil, fmt.Errorf("自动创建 Kafka 主题失败: %w", err)
	}
	return created, nil
}

// HealthCheck 检查第一个 broker 是否可达并能返回控制器信息。
func HealthCheck(ctx context.Context, cfg *config.KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("未配置 Kafka brokers")
	}
	conn, err := (&kafka.Dialer{Timeout: dialTimeout}).DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Controller()
	return err
}
