//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 The RecordFlow Authors
//
// This file is part of RecordFlow.
//
// RecordFlow is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// RecordFlow is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with RecordFlow. If not, see https://www.gnu.org/licenses/.

package extract

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/recordflow/recordflow/core"
)

// Package extract provides the source-side collaborators: extractors that
// stream raw items from MongoDB collections and Kafka topics. Extractors
// are lazy (one item per Next call), connect on first use, and report
// connectivity faults as *core.CollaboratorError.

// MongoExtractorStats holds counters for one MongoDB extraction run.
type MongoExtractorStats struct {
	DocumentsRead int64
	ReadDuration  time.Duration
	LastReadTime  time.Time
}

// MongoExtractorOptions configures the MongoDB extractor.
type MongoExtractorOptions struct {
	URI        string        // MongoDB connection URI
	Database   string        // Database name
	Collection string        // Collection name
	Filter     bson.M        // Query filter, all documents when nil
	Projection bson.M        // Field projection
	Sort       bson.M        // Sort specification
	BatchSize  int32         // Cursor batch size
	Limit      int64         // Maximum documents to read, 0 for no cap
	Timeout    time.Duration // Connect timeout
	Username   string
	Password   string
	AuthSource string
}

// MongoOption is a functional option for MongoExtractorOptions.
type MongoOption func(*MongoExtractorOptions)

// WithMongoURI sets the connection URI.
func WithMongoURI(uri string) MongoOption {
	return func(opts *MongoExtractorOptions) { opts.URI = uri }
}

// WithMongoDatabase sets the database name.
func WithMongoDatabase(database string) MongoOption {
	return func(opts *MongoExtractorOptions) { opts.Database = database }
}

// WithMongoCollection sets the collection name.
func WithMongoCollection(collection string) MongoOption {
	return func(opts *MongoExtractorOptions) { opts.Collection = collection }
}

// WithMongoFilter sets the query filter.
func WithMongoFilter(filter bson.M) MongoOption {
	return func(opts *MongoExtractorOptions) { opts.Filter = filter }
}

// WithMongoProjection sets the field projection.
func WithMongoProjection(projection bson.M) MongoOption {
	return func(opts *MongoExtractorOptions) { opts.Projection = projection }
}

// WithMongoSort sets the sort specification.
func WithMongoSort(sort bson.M) MongoOption {
	return func(opts *MongoExtractorOptions) { opts.Sort = sort }
}

// WithMongoLimit caps the number of documents read.
func WithMongoLimit(limit int64) MongoOption {
	return func(opts *MongoExtractorOptions) { opts.Limit = limit }
}

// WithMongoBatchSize sets the cursor batch size.
func WithMongoBatchSize(size int32) MongoOption {
	return func(opts *MongoExtractorOptions) { opts.BatchSize = size }
}

// WithMongoTimeout sets the connect timeout.
func WithMongoTimeout(timeout time.Duration) MongoOption {
	return func(opts *MongoExtractorOptions) { opts.Timeout = timeout }
}

// WithMongoAuth sets username/password authentication.
func WithMongoAuth(username, password, authSource string) MongoOption {
	return func(opts *MongoExtractorOptions) {
		opts.Username = username
		opts.Password = password
		opts.AuthSource = authSource
	}
}

// MongoExtractor streams documents from one MongoDB collection through a
// find cursor. It implements core.Extractor: each Next call yields one
// decoded bson.M document as the raw payload, tagged with the source
// database, collection, and document identifier.
type MongoExtractor struct {
	opts      *MongoExtractorOptions
	client    *mongo.Client
	cursor    *mongo.Cursor
	stats     MongoExtractorStats
	connected bool
}

// NewMongoExtractor creates a MongoDB extractor with configurable options.
func NewMongoExtractor(options ...MongoOption) (*MongoExtractor, error) {
	opts := &MongoExtractorOptions{
		URI:       "mongodb://localhost:27017",
		BatchSize: 1000,
		Timeout:   30 * time.Second,
	}
	for _, option := range options {
		option(opts)
	}

	if opts.Database == "" {
		return nil, &core.ConfigError{
			Section: "source.mongodb",
			Err:     fmt.Errorf("database name is required"),
		}
	}
	if opts.Collection == "" {
		return nil, &core.ConfigError{
			Section: "source.mongodb",
			Err:     fmt.Errorf("collection name is required"),
		}
	}

	return &MongoExtractor{opts: opts}, nil
}

// Next implements core.Extractor.
func (me *MongoExtractor) Next(ctx context.Context) (core.RawItem, error) {
	start := time.Now()
	defer func() {
		me.stats.ReadDuration += time.Since(start)
		me.stats.LastReadTime = time.Now()
	}()

	if !me.connected {
		if err := me.connect(ctx); err != nil {
			return core.RawItem{}, err
		}
	}

	if !me.cursor.Next(ctx) {
		if err := me.cursor.Err(); err != nil {
			return core.RawItem{}, &core.CollaboratorError{
				Collaborator: "extractor",
				Op:           "cursor_next",
				Err:          err,
			}
		}
		return core.RawItem{}, io.EOF
	}

	var doc bson.M
	if err := me.cursor.Decode(&doc); err != nil {
		return core.RawItem{}, &core.CollaboratorError{
			Collaborator: "extractor",
			Op:           "decode",
			Err:          err,
		}
	}
	me.stats.DocumentsRead++

	meta := core.Metadata{
		core.MetaSourceType: "mongodb",
		core.MetaDatabase:   me.opts.Database,
		core.MetaCollection: me.opts.Collection,
	}
	if id, ok := doc["_id"]; ok {
		meta[core.MetaDocumentID] = documentID(id)
	}

	return core.RawItem{Payload: doc, Meta: meta}, nil
}

// Close implements core.Extractor.
func (me *MongoExtractor) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), me.opts.Timeout)
	defer cancel()

	var firstErr error
	if me.cursor != nil {
		if err := me.cursor.Close(ctx); err != nil {
			firstErr = err
		}
		me.cursor = nil
	}
	if me.client != nil {
		if err := me.client.Disconnect(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		me.client = nil
	}
	me.connected = false

	if firstErr != nil {
		return &core.CollaboratorError{
			Collaborator: "extractor",
			Op:           "close",
			Err:          firstErr,
		}
	}
	return nil
}

// Stats returns extraction counters for the run so far.
func (me *MongoExtractor) Stats() MongoExtractorStats { return me.stats }

func (me *MongoExtractor) connect(ctx context.Context) error {
	clientOpts := options.Client().
		ApplyURI(me.opts.URI).
		SetConnectTimeout(me.opts.Timeout)

	if me.opts.Username != "" && me.opts.Password != "" {
		auth := options.Credential{
			Username:   me.opts.Username,
			Password:   me.opts.Password,
			AuthSource: me.opts.AuthSource,
		}
		if auth.AuthSource == "" {
			auth.AuthSource = me.opts.Database
		}
		clientOpts.SetAuth(auth)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return &core.CollaboratorError{Collaborator: "extractor", Op: "connect", Err: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return &core.CollaboratorError{Collaborator: "extractor", Op: "ping", Err: err}
	}

	findOpts := options.Find().SetBatchSize(me.opts.BatchSize)
	if me.opts.Limit > 0 {
		findOpts.SetLimit(me.opts.Limit)
	}
	if me.opts.Projection != nil {
		findOpts.SetProjection(me.opts.Projection)
	}
	if me.opts.Sort != nil {
		findOpts.SetSort(me.opts.Sort)
	}

	filter := me.opts.Filter
	if filter == nil {
		filter = bson.M{}
	}

	cursor, err := client.Database(me.opts.Database).
		Collection(me.opts.Collection).
		Find(ctx, filter, findOpts)
	if err != nil {
		client.Disconnect(ctx)
		return &core.CollaboratorError{Collaborator: "extractor", Op: "query", Err: err}
	}

	me.client = client
	me.cursor = cursor
	me.connected = true
	return nil
}

// documentID renders a document's _id as a stable string identifier.
func documentID(id interface{}) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
