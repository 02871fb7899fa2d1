package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BerniceZTT/crm_pool/models"
	"github.com/BerniceZTT/crm_pool/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func collectionFor(kind models.RecordKind) string {
	if kind == models.KindLead {
		return LeadsCollection
	}
	return CustomersCollection
}

// recordFilter 把筛选条件翻译为查询文档，始终排除已删除记录
func recordFilter(q models.RecordQuery) bson.M {
	filter := bson.M{"deleted": false}
	if q.PoolState != "" {
		filter["poolState"] = q.PoolState
	}
	if q.OwnerID != "" {
		filter["ownerId"] = q.OwnerID
	}
	if q.NameKey != "" {
		filter["nameKey"] = q.NameKey
	}
	if q.RegistrationID != "" {
		filter["registrationId"] = q.RegistrationID
	}
	if q.Region != "" {
		filter["region"] = q.Region
	}
	if q.ResumeAfter != "" {
		filter["_id"] = bson.M{"$gt": q.ResumeAfter}
	}
	if q.Stale != nil {
		// 从未跟进/成单的记录以 createdAt 为参考时间；nil 同时匹配字段缺失
		filter["$or"] = bson.A{
			bson.M{"lastContactTime": bson.M{"$lt": q.Stale.ContactBefore}},
			bson.M{"lastContactTime": nil, "createdAt": bson.M{"$lt": q.Stale.ContactBefore}},
			bson.M{"lastOrderTime": bson.M{"$lt": q.Stale.OrderBefore}},
			bson.M{"lastOrderTime": nil, "createdAt": bson.M{"$lt": q.Stale.OrderBefore}},
		}
	}
	return filter
}

// recordUpdate 归属字段的整体写入，空值字段显式 $unset。code 与创建信息不可变
func recordUpdate(next *models.SalesRecord) bson.M {
	set := bson.M{
		"name":      next.Name,
		"nameKey":   next.NameKey,
		"poolState": next.PoolState,
		"deleted":   next.Deleted,
		"updatedAt": next.UpdatedAt,
	}
	unset := bson.M{}
	optional := func(key string, present bool, value interface{}) {
		if present {
			set[key] = value
		} else {
			unset[key] = ""
		}
	}
	optional("registrationId", next.RegistrationID != "", next.RegistrationID)
	optional("region", next.Region != "", next.Region)
	optional("ownerId", next.OwnerID != "", next.OwnerID)
	optional("poolEntryTime", next.PoolEntryTime != nil, next.PoolEntryTime)
	optional("poolEntryReason", next.PoolEntryReason != "", next.PoolEntryReason)
	optional("lastContactTime", next.LastContactTime != nil, next.LastContactTime)
	optional("lastOrderTime", next.LastOrderTime != nil, next.LastOrderTime)
	optional("mergedInto", next.MergedInto != "", next.MergedInto)
	optional("updatedBy", next.UpdatedBy != "", next.UpdatedBy)

	update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

// compareAndSet 按 _id+version 条件更新，未命中时区分记录不存在与版本过期
func (s *MongoStore) compareAndSet(ctx context.Context, coll, id string, version int64, update bson.M) error {
	filter := bson.M{"_id": id, "version": version, "deleted": false}
	res, err := s.db.Collection(coll).UpdateOne(ctx, filter, update)
	if err != nil {
		return translateWriteError(err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	n, err := s.db.Collection(coll).CountDocuments(ctx, bson.M{"_id": id, "deleted": false})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrStale
}

func (s *MongoStore) Get(ctx context.Context, kind models.RecordKind, id string) (*models.SalesRecord, error) {
	var r models.SalesRecord
	err := executeDbOperation(ctx, func() error {
		return translateWriteError(s.db.Collection(collectionFor(kind)).
			FindOne(ctx, bson.M{"_id": id, "deleted": false}).Decode(&r))
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *MongoStore) Swap(ctx context.Context, kind models.RecordKind, next *models.SalesRecord) error {
	if err := s.compareAndSet(ctx, collectionFor(kind), next.ID, next.Version, recordUpdate(next)); err != nil {
		return err
	}
	next.Version++
	return nil
}

func (s *MongoStore) Scan(ctx context.Context, kind models.RecordKind, q models.RecordQuery) ([]models.SalesRecord, error) {
	filter := recordFilter(q)
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	utils.LogDbOperation("scan", collectionFor(kind), filter)

	var out []models.SalesRecord
	err := executeDbOperation(ctx, func() error {
		cursor, err := s.db.Collection(collectionFor(kind)).Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		out = nil
		return cursor.All(ctx, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", kind, err)
	}
	return out, nil
}

func (s *MongoStore) Count(ctx context.Context, kind models.RecordKind, q models.RecordQuery) (int64, error) {
	q.ResumeAfter = ""
	var n int64
	err := executeDbOperation(ctx, func() error {
		var err error
		n, err = s.db.Collection(collectionFor(kind)).CountDocuments(ctx, recordFilter(q))
		return err
	})
	return n, err
}

// 客户

func (s *MongoStore) InsertCustomer(ctx context.Context, c *models.Customer) error {
	_, err := s.db.Collection(CustomersCollection).InsertOne(ctx, c)
	return translateWriteError(err)
}

func (s *MongoStore) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	var c models.Customer
	err := executeDbOperation(ctx, func() error {
		return translateWriteError(s.db.Collection(CustomersCollection).
			FindOne(ctx, bson.M{"_id": id, "deleted": false}).Decode(&c))
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *MongoStore) PatchCustomer(ctx context.Context, id string, patch CustomerPatch) error {
	set := bson.M{"updatedAt": patch.UpdatedAt}
	if patch.IsKey != nil {
		set["isKey"] = *patch.IsKey
	}
	if patch.IsBlacklist != nil {
		set["isBlacklist"] = *patch.IsBlacklist
	}
	if patch.UpdatedBy != "" {
		set["updatedBy"] = patch.UpdatedBy
	}
	update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}

	res, err := s.db.Collection(CustomersCollection).UpdateOne(ctx, bson.M{"_id": id, "deleted": false}, update)
	if err != nil {
		return translateWriteError(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetParent 在事务中写入上级并递增上级链上每个客户的版本。
// 并发修改同一条链的事务会在某条客户记录上产生写冲突，只有一个能提交
func (s *MongoStore) SetParent(ctx context.Context, id string, version int64, parentID string, fence map[string]int64, by string, now time.Time) error {
	update := parentUpdate(parentID, by, now)
	return s.withTransaction(ctx, func(sc mongo.SessionContext) error {
		if err := s.compareAndSet(sc, CustomersCollection, id, version, update); err != nil {
			return err
		}
		for fid, v := range fence {
			err := s.compareAndSet(sc, CustomersCollection, fid, v, bson.M{"$inc": bson.M{"version": 1}})
			if errors.Is(err, ErrNotFound) {
				return ErrStale
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func parentUpdate(parentID, by string, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	if by != "" {
		set["updatedBy"] = by
	}
	update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
	if parentID == "" {
		update["$unset"] = bson.M{"parentCustomerId": ""}
	} else {
		set["parentCustomerId"] = parentID
	}
	return update
}

func (s *MongoStore) AddCollaborators(ctx context.Context, id string, version int64, collaboratorIDs []string, by string, now time.Time) error {
	update := bson.M{
		"$addToSet": bson.M{"collaboratorIds": bson.M{"$each": collaboratorIDs}},
		"$set":      bson.M{"updatedBy": by, "updatedAt": now},
		"$inc":      bson.M{"version": 1},
	}
	return s.compareAndSet(ctx, CustomersCollection, id, version, update)
}

func (s *MongoStore) ListSubsidiaries(ctx context.Context, parentID string) ([]models.Customer, error) {
	filter := bson.M{"parentCustomerId": parentID, "deleted": false}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	var out []models.Customer
	err := executeDbOperation(ctx, func() error {
		cursor, err := s.db.Collection(CustomersCollection).Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		out = nil
		return cursor.All(ctx, &out)
	})
	return out, err
}

func (s *MongoStore) CustomerStats(ctx context.Context, ownerID string) (*models.CustomerStats, error) {
	coll := s.db.Collection(CustomersCollection)
	private := bson.M{"deleted": false, "poolState": models.PoolStatePrivate}
	if ownerID != "" {
		private["ownerId"] = ownerID
	}
	with := func(key string) bson.M {
		f := bson.M{key: true}
		for k, v := range private {
			f[k] = v
		}
		return f
	}

	stats := &models.CustomerStats{}
	counts := []struct {
		dst    *int64
		filter bson.M
	}{
		{&stats.PrivateCount, private},
		{&stats.KeyCount, with("isKey")},
		{&stats.BlacklistCount, with("isBlacklist")},
		{&stats.PublicPoolCount, bson.M{"deleted": false, "poolState": models.PoolStatePublic}},
	}
	for _, c := range counts {
		n, err := coll.CountDocuments(ctx, c.filter)
		if err != nil {
			return nil, fmt.Errorf("count customers: %w", err)
		}
		*c.dst = n
	}
	stats.TotalCount = stats.PrivateCount + stats.PublicPoolCount
	return stats, nil
}

// 线索

func (s *MongoStore) InsertLead(ctx context.Context, l *models.Lead) error {
	_, err := s.db.Collection(LeadsCollection).InsertOne(ctx, l)
	return translateWriteError(err)
}

func (s *MongoStore) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	var l models.Lead
	err := executeDbOperation(ctx, func() error {
		return translateWriteError(s.db.Collection(LeadsCollection).
			FindOne(ctx, bson.M{"_id": id, "deleted": false}).Decode(&l))
	})
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *MongoStore) SwapLead(ctx context.Context, next *models.Lead) error {
	update := recordUpdate(&next.SalesRecord)
	set := update["$set"].(bson.M)
	set["companyName"] = next.CompanyName
	set["contactName"] = next.ContactName
	set["contactPhone"] = next.ContactPhone
	set["source"] = next.Source
	set["status"] = next.Status
	set["priority"] = next.Priority
	set["score"] = next.Score

	unset, _ := update["$unset"].(bson.M)
	if unset == nil {
		unset = bson.M{}
	}
	if next.NextFollowTime != nil {
		set["nextFollowTime"] = next.NextFollowTime
	} else {
		unset["nextFollowTime"] = ""
	}
	if next.ConvertedCustomerID != "" {
		set["convertedCustomerId"] = next.ConvertedCustomerID
		set["convertedAt"] = next.ConvertedAt
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	if err := s.compareAndSet(ctx, LeadsCollection, next.ID, next.Version, update); err != nil {
		return err
	}
	next.Version++
	return nil
}

func (s *MongoStore) DueFollowUps(ctx context.Context, now time.Time, limit int) ([]models.Lead, error) {
	filter := bson.M{
		"deleted":        false,
		"nextFollowTime": bson.M{"$lte": now},
		"status":         bson.M{"$nin": bson.A{models.LeadStatusConverted, models.LeadStatusUnqualified}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "nextFollowTime", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	var out []models.Lead
	err := executeDbOperation(ctx, func() error {
		cursor, err := s.db.Collection(LeadsCollection).Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		out = nil
		return cursor.All(ctx, &out)
	})
	return out, err
}
