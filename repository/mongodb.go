package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BerniceZTT/crm_pool/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	// 集合名
	CustomersCollection     = "customers"
	LeadsCollection         = "leads"
	ContactsCollection      = "contacts"
	ActivitiesCollection    = "activities"
	LeadFollowUpCollection  = "leadFollowUpRecords"
	OwnershipHistCollection = "ownershipHistory"
	SystemConfigCollection  = "systemConfig"
	CountersCollection      = "counters"
)

// MongoStore 基于 MongoDB 的存储实现
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ Store = (*MongoStore)(nil)

// ConnectMongo 建立MongoDB连接并初始化索引
func ConnectMongo(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	// 设置连接超时
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("连接MongoDB失败: %w", err)
	}

	// 检查连接
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping MongoDB失败: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(dbName)}
	utils.Logger.Info().Str("database", dbName).Msg("已连接到MongoDB")

	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// Database 返回数据库实例
func (s *MongoStore) Database() *mongo.Database {
	return s.db
}

// Ping 健康检查
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close 关闭MongoDB连接
func (s *MongoStore) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		utils.Logger.Error().Err(err).Msg("断开MongoDB连接失败")
		return err
	}
	utils.Logger.Info().Msg("已断开MongoDB连接")
	return nil
}

// EnsureIndexes 初始化集合索引，code 唯一索引是编码去重的最终保障
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		CustomersCollection: {
			{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "nameKey", Value: 1}, {Key: "region", Value: 1}}},
			{Keys: bson.D{{Key: "registrationId", Value: 1}}},
			{Keys: bson.D{{Key: "poolState", Value: 1}, {Key: "ownerId", Value: 1}}},
			{Keys: bson.D{{Key: "parentCustomerId", Value: 1}}},
		},
		LeadsCollection: {
			{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "nameKey", Value: 1}, {Key: "region", Value: 1}}},
			{Keys: bson.D{{Key: "poolState", Value: 1}, {Key: "ownerId", Value: 1}}},
			{Keys: bson.D{{Key: "nextFollowTime", Value: 1}}},
		},
		ContactsCollection:      {{Keys: bson.D{{Key: "customerId", Value: 1}}}},
		ActivitiesCollection:    {{Keys: bson.D{{Key: "customerId", Value: 1}}}},
		LeadFollowUpCollection:  {{Keys: bson.D{{Key: "leadId", Value: 1}, {Key: "createdAt", Value: 1}}}},
		OwnershipHistCollection: {{Keys: bson.D{{Key: "recordId", Value: 1}, {Key: "createdAt", Value: 1}}}},
	}

	for collName, idx := range indexes {
		if _, err := s.db.Collection(collName).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("创建索引失败 %s: %w", collName, err)
		}
		utils.Logger.Debug().Str("collection", collName).Msg("索引已就绪")
	}
	return nil
}

// withTransaction 在会话事务中执行 fn，瞬时错误和写冲突由驱动重试。
// MongoDB 事务要求副本集或分片集群
func (s *MongoStore) withTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("开启会话失败: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// executeDbOperation 执行数据库读操作，网络类错误自动重试
func executeDbOperation(ctx context.Context, operation func() error) error {
	return utils.Retry(ctx, 3, 200*time.Millisecond, isRetryableError, operation)
}

// isRetryableError 判断错误是否可重试
func isRetryableError(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStale) || errors.Is(err, ErrDuplicate) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	// MongoDB可重试错误代码
	retryableCodes := map[int32]bool{
		6:     true, // HostUnreachable
		7:     true, // HostNotFound
		89:    true, // NetworkTimeout
		91:    true, // ShutdownInProgress
		189:   true, // PrimarySteppedDown
		10107: true, // NotMaster
		13436: true, // NotMasterNoSlaveOk
		11600: true, // InterruptedAtShutdown
		11602: true, // InterruptedDueToReplStateChange
		10058: true, // ConnectionReset
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return retryableCodes[cmdErr.Code]
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}

	// 检查常见网络错误
	return isNetworkError(err)
}

// isNetworkError 检查是否是网络错误
func isNetworkError(err error) bool {
	errMsg := strings.ToLower(err.Error())
	networkErrors := []string{
		"connection refused",
		"connection reset",
		"connection closed",
		"no reachable servers",
		"server selection error",
	}

	for _, ne := range networkErrors {
		if strings.Contains(errMsg, ne) {
			return true
		}
	}

	return false
}

// translateWriteError 把驱动错误翻译为存储层错误
func translateWriteError(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}
