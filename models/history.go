package models

import "time"

// OwnershipOperation 归属变更操作类型
type OwnershipOperation string

const (
	OpCreate   OwnershipOperation = "create"
	OpRelease  OwnershipOperation = "release"
	OpEvict    OwnershipOperation = "evict"
	OpClaim    OwnershipOperation = "claim"
	OpAssign   OwnershipOperation = "assign"
	OpTransfer OwnershipOperation = "transfer"
	OpShare    OwnershipOperation = "share"
	OpMerge    OwnershipOperation = "merge"
	OpDelete   OwnershipOperation = "delete"
	OpConvert  OwnershipOperation = "convert"
)

// OwnershipHistory 归属变更历史记录，事务提交后追加
type OwnershipHistory struct {
	ID            string             `json:"id" bson:"_id"`
	Kind          RecordKind         `json:"kind" bson:"kind"`
	RecordID      string             `json:"recordId" bson:"recordId"`
	RecordName    string             `json:"recordName" bson:"recordName"`
	FromOwnerID   string             `json:"fromOwnerId,omitempty" bson:"fromOwnerId,omitempty"`
	ToOwnerID     string             `json:"toOwnerId,omitempty" bson:"toOwnerId,omitempty"`
	OperationType OwnershipOperation `json:"operationType" bson:"operationType"`
	Reason        string             `json:"reason,omitempty" bson:"reason,omitempty"`
	OperatorID    string             `json:"operatorId" bson:"operatorId"`
	OperatorName  string             `json:"operatorName,omitempty" bson:"operatorName,omitempty"`
	CreatedAt     time.Time          `json:"createdAt" bson:"createdAt"`
}

// OwnershipEvent 归属变更事件，提交后投递到消息队列
type OwnershipEvent struct {
	EventID    string             `json:"eventId"`
	Kind       RecordKind         `json:"kind"`
	RecordID   string             `json:"recordId"`
	Operation  OwnershipOperation `json:"operation"`
	FromOwner  string             `json:"fromOwner,omitempty"`
	ToOwner    string             `json:"toOwner,omitempty"`
	PoolState  PoolState          `json:"poolState"`
	Reason     string             `json:"reason,omitempty"`
	OperatorID string             `json:"operatorId,omitempty"`
	OccurredAt time.Time          `json:"occurredAt"`
}
