package mongostore

import (
	"context"
	"errors"

	"genstudio/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// mapErr 把驱动错误收敛到 storage 哨兵错误，其余原样上抛
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return storage.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return storage.ErrDuplicate
	}
	return err
}

func idFilter(id string) bson.D {
	return bson.D{{Key: "_id", Value: id}}
}

// findOne 未命中返回 (nil, nil)，与 SQL 侧 get 的约定对齐
func findOne[T any](ctx context.Context, col *mongo.Collection, filter bson.D) (*T, error) {
	out := new(T)
	if err := col.FindOne(ctx, filter).Decode(out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, mapErr(err)
	}
	return out, nil
}

// findMany 未命中返回空切片，调用方不用区分 nil
func findMany[T any](ctx context.Context, col *mongo.Collection, filter bson.D, opts ...options.Lister[options.FindOptions]) ([]*T, error) {
	cursor, err := col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, mapErr(err)
	}

	// All 会耗尽并关闭游标
	results := []*T{}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func count(ctx context.Context, col *mongo.Collection, filter bson.D) (int64, error) {
	n, err := col.CountDocuments(ctx, filter)
	return n, mapErr(err)
}

func insertOne(ctx context.Context, col *mongo.Collection, doc interface{}) error {
	_, err := col.InsertOne(ctx, doc)
	return mapErr(err)
}

// updateFields $set 指定字段，没匹配到文档算 ErrNotFound
func updateFields(ctx context.Context, col *mongo.Collection, id string, update bson.D) error {
	res, err := col.UpdateOne(ctx, idFilter(id), bson.D{{Key: "$set", Value: update}})
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func deleteByID(ctx context.Context, col *mongo.Collection, id string) error {
	res, err := col.DeleteOne(ctx, idFilter(id))
	if err != nil {
		return mapErr(err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}
