package models

import (
	"bytes"
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// ResourceKind 标识群组资源的类别，同时也是 resources 子文档中的字段名。
type ResourceKind string

const (
	KindDocuments ResourceKind = "documents" // 在线创建的文档
	KindFiles     ResourceKind = "files"     // 上传的文件
)

// ResourceKinds 是对账时遍历资源类别的固定顺序。
var ResourceKinds = []ResourceKind{KindDocuments, KindFiles}

// Valid 判断类别是否为已知的资源类别。
func (k ResourceKind) Valid() bool {
	return k == KindDocuments || k == KindFiles
}

// Resource 是群组中缓存的一条资源元数据，名称以云端存储为准。
type Resource struct {
	ID       string `bson:"id" json:"id"`                                  // 云端存储中的文件 ID
	Name     string `bson:"name" json:"name"`                              // 显示名称
	URL      string `bson:"url,omitempty" json:"url,omitempty"`            // 打开链接
	MimeType string `bson:"mime_type,omitempty" json:"mimeType,omitempty"` // 文件类型
	AddedBy  string `bson:"added_by,omitempty" json:"addedBy,omitempty"`   // 添加者的用户 ID

	// LastUpdated 在用户刚刚本地重命名时写入，仅用作对账的防抖信号。
	LastUpdated *time.Time `bson:"last_updated,omitempty" json:"lastUpdated,omitempty"`
}

// ResourceList 是某一类别下按顺序排列的资源。
// 存储中该字段如果不是数组（缺失、null 或其他类型），解码结果为空列表而不是报错。
type ResourceList []Resource

// UnmarshalBSONValue 实现 bson.ValueUnmarshaler。
func (l *ResourceList) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t != bsontype.Array {
		*l = nil
		return nil
	}
	var items []Resource
	if err := bson.UnmarshalValue(t, data, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

// UnmarshalJSON 实现 json.Unmarshaler，非数组的值同样视为空列表。
func (l *ResourceList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		*l = nil
		return nil
	}
	var items []Resource
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

// ResourceSet 对应群组文档中的 resources 子文档。
type ResourceSet struct {
	Documents ResourceList `bson:"documents,omitempty" json:"documents,omitempty"`
	Files     ResourceList `bson:"files,omitempty" json:"files,omitempty"`
}

// List 返回指定类别的资源列表，未知类别返回 nil。
func (s *ResourceSet) List(kind ResourceKind) ResourceList {
	if s == nil {
		return nil
	}
	switch kind {
	case KindDocuments:
		return s.Documents
	case KindFiles:
		return s.Files
	default:
		return nil
	}
}

// Group 代表一个学习小组的文档快照。
type Group struct {
	ID        string          `bson:"_id" json:"id"`
	Name      string          `bson:"name" json:"name"`
	CreatedBy string          `bson:"created_by,omitempty" json:"createdBy,omitempty"`
	Members   map[string]bool `bson:"members,omitempty" json:"members,omitempty"` // 使用 map 便于快速判断成员
	Resources *ResourceSet    `bson:"resources,omitempty" json:"resources,omitempty"`
	CreatedAt time.Time       `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `bson:"updated_at" json:"updatedAt"`
}

// ReconcileIntent 是一次对账过程中产生的名称修正意图，仅在内存中存在。
type ReconcileIntent struct {
	Kind       ResourceKind
	ResourceID string
	NewName    string
}
