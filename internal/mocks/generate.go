package mocks

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Repository --dir ../domain/player --output domain/player --outpkg playermock --filename repository_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name GameAdapter --dir ../usecase --inpackage --testonly --output ../usecase --outpkg usecase --filename mock_game_adapter_test.go --structname mockGameAdapter
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Publisher --dir ../usecase --inpackage --testonly --output ../usecase --outpkg usecase --filename mock_publisher_test.go --structname mockPublisher
