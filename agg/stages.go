package agg

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Stage is anything that marshals to a single aggregation stage document.
type Stage interface {
	Stage() bson.D
}

// Pipeline builds a mongo.Pipeline from the given stages.
func Pipeline(stages ...Stage) mongo.Pipeline {
	pipeline := make(mongo.Pipeline, 0, len(stages))
	for _, stage := range stages {
		pipeline = append(pipeline, stage.Stage())
	}

	return pipeline
}

// ---------------------------------------------

// Sample draws Size pseudo-random documents without replacement.
type Sample struct {
	Size int64
}

func (s Sample) Stage() bson.D {
	return bson.D{{"$sample", bson.D{{"size", s.Size}}}}
}

// ---------------------------------------------

type Limit int64

func (l Limit) Stage() bson.D {
	return bson.D{{"$limit", int64(l)}}
}

// ---------------------------------------------

type Unset []string

func (u Unset) Stage() bson.D {
	return bson.D{{"$unset", []string(u)}}
}

// ---------------------------------------------

type Match struct {
	Filter any
}

func (m Match) Stage() bson.D {
	return bson.D{{"$match", m.Filter}}
}

// ---------------------------------------------

type Project struct {
	Fields bson.D
}

func (p Project) Stage() bson.D {
	return bson.D{{"$project", p.Fields}}
}

// ---------------------------------------------

type Group struct {
	ID     any
	Fields bson.D
}

func (g Group) Stage() bson.D {
	body := append(bson.D{{"_id", g.ID}}, g.Fields...)
	return bson.D{{"$group", body}}
}

// ---------------------------------------------

// UnionWith appends the results of a sub-pipeline run against another
// collection in the same database.
type UnionWith struct {
	Coll     string
	Pipeline mongo.Pipeline
}

func (u UnionWith) Stage() bson.D {
	return bson.D{{"$unionWith", bson.D{
		{"coll", u.Coll},
		{"pipeline", u.Pipeline},
	}}}
}

// ---------------------------------------------

// Merge writes the pipeline's output into another collection.
type Merge struct {
	DB             string
	Coll           string
	WhenMatched    string
	WhenNotMatched string
}

func (m Merge) Stage() bson.D {
	return bson.D{{"$merge", bson.D{
		{"into", bson.D{{"db", m.DB}, {"coll", m.Coll}}},
		{"whenMatched", m.WhenMatched},
		{"whenNotMatched", m.WhenNotMatched},
	}}}
}
