package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/BerniceZTT/crm_pool/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Reparent 在一个事务中迁移联系人、跟进记录和子公司，任一集合失败则全部回滚
func (s *MongoStore) Reparent(ctx context.Context, fromID, toID string) (models.ReparentResult, error) {
	var res models.ReparentResult
	move := bson.M{"$set": bson.M{"customerId": toID, "updatedAt": time.Now()}}

	err := s.withTransaction(ctx, func(sc mongo.SessionContext) error {
		// 事务重试时回调会重新执行
		res = models.ReparentResult{}

		r, err := s.db.Collection(ContactsCollection).UpdateMany(sc, bson.M{"customerId": fromID}, move)
		if err != nil {
			return fmt.Errorf("reparent contacts: %w", err)
		}
		res.Contacts = int(r.ModifiedCount)

		r, err = s.db.Collection(ActivitiesCollection).UpdateMany(sc, bson.M{"customerId": fromID}, move)
		if err != nil {
			return fmt.Errorf("reparent activities: %w", err)
		}
		res.Activities = int(r.ModifiedCount)

		r, err = s.db.Collection(CustomersCollection).UpdateMany(sc,
			bson.M{"parentCustomerId": fromID, "deleted": false, "_id": bson.M{"$ne": toID}},
			bson.M{"$set": bson.M{"parentCustomerId": toID}, "$inc": bson.M{"version": 1}},
		)
		if err != nil {
			return fmt.Errorf("reparent subsidiaries: %w", err)
		}
		res.Subsidiaries = int(r.ModifiedCount)
		return nil
	})
	if err != nil {
		return models.ReparentResult{}, err
	}
	return res, nil
}

func (s *MongoStore) AddContact(ctx context.Context, c *models.Contact) error {
	_, err := s.db.Collection(ContactsCollection).InsertOne(ctx, c)
	return translateWriteError(err)
}

func (s *MongoStore) ListContacts(ctx context.Context, customerID string) ([]models.Contact, error) {
	var out []models.Contact
	err := s.findAll(ctx, ContactsCollection, bson.M{"customerId": customerID}, bson.D{{Key: "_id", Value: 1}}, &out)
	return out, err
}

func (s *MongoStore) AddActivity(ctx context.Context, a *models.Activity) error {
	_, err := s.db.Collection(ActivitiesCollection).InsertOne(ctx, a)
	return translateWriteError(err)
}

func (s *MongoStore) ListActivities(ctx context.Context, customerID string) ([]models.Activity, error) {
	var out []models.Activity
	err := s.findAll(ctx, ActivitiesCollection, bson.M{"customerId": customerID}, bson.D{{Key: "_id", Value: 1}}, &out)
	return out, err
}

func (s *MongoStore) AppendFollowUp(ctx context.Context, f *models.LeadFollowUp) error {
	_, err := s.db.Collection(LeadFollowUpCollection).InsertOne(ctx, f)
	return translateWriteError(err)
}

func (s *MongoStore) ListFollowUps(ctx context.Context, leadID string) ([]models.LeadFollowUp, error) {
	var out []models.LeadFollowUp
	err := s.findAll(ctx, LeadFollowUpCollection, bson.M{"leadId": leadID}, bson.D{{Key: "createdAt", Value: 1}}, &out)
	return out, err
}

func (s *MongoStore) AppendHistory(ctx context.Context, h *models.OwnershipHistory) error {
	_, err := s.db.Collection(OwnershipHistCollection).InsertOne(ctx, h)
	return translateWriteError(err)
}

func (s *MongoStore) ListHistory(ctx context.Context, kind models.RecordKind, recordID string) ([]models.OwnershipHistory, error) {
	var out []models.OwnershipHistory
	err := s.findAll(ctx, OwnershipHistCollection, bson.M{"kind": kind, "recordId": recordID}, bson.D{{Key: "createdAt", Value: 1}}, &out)
	return out, err
}

func (s *MongoStore) GetConfig(ctx context.Context, configType models.ConfigType) (*models.SystemConfig, error) {
	var cfg models.SystemConfig
	err := executeDbOperation(ctx, func() error {
		return translateWriteError(s.db.Collection(SystemConfigCollection).
			FindOne(ctx, bson.M{"_id": configType}).Decode(&cfg))
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *MongoStore) SaveConfig(ctx context.Context, cfg *models.SystemConfig) error {
	_, err := s.db.Collection(SystemConfigCollection).ReplaceOne(ctx,
		bson.M{"_id": cfg.ConfigType}, cfg, options.Replace().SetUpsert(true))
	return translateWriteError(err)
}

func (s *MongoStore) findAll(ctx context.Context, coll string, filter bson.M, sort bson.D, out interface{}) error {
	opts := options.Find().SetSort(sort)
	return executeDbOperation(ctx, func() error {
		cursor, err := s.db.Collection(coll).Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		return cursor.All(ctx, out)
	})
}
