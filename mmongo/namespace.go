package mmongo

// Namespace identifies a collection within a database.
type Namespace struct {
	DB   string `bson:"db"`
	Coll string `bson:"coll"`
}

// String returns the namespace as "db.coll".
func (ns Namespace) String() string {
	return ns.DB + "." + ns.Coll
}
