// The ofga-package provides a client for [OpenFGA]-compatible authorization
// services speaking the JSON-over-HTTP API.
//
// You start by creating a client bound to the service's base URL:
//
//	client, err := ofga.NewClient("http://localhost:8080")
//
// Loading defaults resolves the named store (creating it if absent) and the
// latest authorization model in it, so no explicit identifiers are needed
// afterwards:
//
//	err = client.LoadDefaults(ctx, "mystore")
//
// Tuples state relationships and are written in deduplicated batches:
//
//	err = client.WriteTuples(ctx, []ofga.TupleKey{
//		{User: "user:myuser", Relation: "member", Object: "group:mygroup"},
//		{User: "folder:myfolder", Relation: "parent", Object: "doc:mydoc"},
//	}, ofga.WriteOptions{})
//
// Queries answer whether and where relationships hold:
//
//	ok, err := client.IsAllowed(ctx, ofga.TupleKey{
//		User: "user:myuser", Relation: "viewer", Object: "doc:mydoc",
//	}, ofga.QueryOptions{})
//	docs, err := client.ListObjects(ctx, "user:myuser", "viewer", "doc", ofga.ListOptions{})
//
// The [seed] package reconciles a store against a declared model and tuple
// set, which is how deployments are bootstrapped.
//
// For more examples, check the repository.
// You may find additional information in the README.
//
// [OpenFGA]: https://openfga.dev
package ofga
