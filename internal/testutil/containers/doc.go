// Package containers starts throwaway Docker dependencies for integration
// tests using testcontainers-go: a MySQL 8 database and an Eclipse
// Mosquitto broker.
//
// Containers are usually shared per package through TestMain:
//
//	var db *containers.MySQLContainer
//
//	func TestMain(m *testing.M) {
//	    var err error
//	    db, err = containers.NewMySQLContainer(context.Background(), nil)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    code := m.Run()
//	    _ = db.Terminate(context.Background())
//	    os.Exit(code)
//	}
//
// Tests using this package need the "integration" build tag:
//
//	go test -tags=integration ./...
package containers
