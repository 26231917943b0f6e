// Package mongo provides the MongoDB backing for the mail delivery queue:
// client initialization with application-level retry, the transactional
// delivery store, the batched user directory, the template collection, and
// the change-stream watcher that feeds document events to the dispatcher.
//
// Client initialization retries the initial connect and ping to handle
// MongoDB Atlas cold starts and brief network interruptions that could
// otherwise cause application startup failures.
//
// Basic usage:
//
//	var cfg mongo.Config
//	if err := env.Parse(&cfg); err != nil {
//		log.Fatal(err)
//	}
//
//	client, err := mongo.New(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Disconnect(ctx)
//
//	db := client.Database("mailroom")
//	store := mongo.NewDeliveryStore(client, db.Collection("mail"))
//	users := mongo.NewUserDirectory(db.Collection("users"))
//	templates := mongo.NewTemplateCollection(db.Collection("templates"))
//
//	watcher, err := mongo.NewWatcher(db.Collection("mail"), dispatcher)
//	if err != nil {
//		log.Fatal(err)
//	}
//	g.Go(watcher.Run(ctx))
//
// # Configuration
//
// Configuration is handled through environment variables via the Config
// struct. The default values are optimized for MongoDB Atlas deployments:
//
//	MONGODB_URL                 (required)
//	MONGODB_CONNECT_TIMEOUT     (default: 10s)
//	MONGODB_MAX_POOL_SIZE       (default: 100)
//	MONGODB_MIN_POOL_SIZE       (default: 1)
//	MONGODB_MAX_CONN_IDLE_TIME  (default: 300s)
//	MONGODB_RETRY_WRITES        (default: true)
//	MONGODB_RETRY_READS         (default: true)
//	MONGODB_RETRY_ATTEMPTS      (default: 3)
//	MONGODB_RETRY_INTERVAL      (default: 5s)
//
// # Transactions
//
// DeliveryStore applies each state transition inside a session transaction.
// The driver retries transient transaction errors itself, which is the
// isolation contract the delivery state machine builds on: conflicting
// concurrent writers are retried by the store, not by the application.
//
// The watcher requires a replica set or Atlas deployment, since both change
// streams and multi-statement transactions are unavailable on standalone
// servers.
package mongo
