package contracts

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BridgeIntentABI is the ABI of the BridgeIntent contract
const BridgeIntentABI = `[
	{"type":"function","name":"createIntent","stateMutability":"nonpayable","inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"amountA","type":"uint256"},{"name":"expectedAmountB","type":"uint256"},{"name":"reward","type":"uint256"},{"name":"auctionDuration","type":"uint256"}],"outputs":[{"name":"intentId","type":"uint256"}]},
	{"type":"function","name":"placeBid","stateMutability":"nonpayable","inputs":[{"name":"intentId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"finalizeAuction","stateMutability":"nonpayable","inputs":[{"name":"intentId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"depositAndPickup","stateMutability":"nonpayable","inputs":[{"name":"intentId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"settleIntent","stateMutability":"nonpayable","inputs":[{"name":"intentId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"settleIntentWithChain2Verification","stateMutability":"nonpayable","inputs":[{"name":"intentId","type":"uint256"},{"name":"chain2IntentId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"solveIntentOnChain2","stateMutability":"nonpayable","inputs":[{"name":"intentId","type":"uint256"},{"name":"user","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"recipients","type":"address[]"},{"name":"amounts","type":"uint256[]"}],"outputs":[]},
	{"type":"function","name":"cancelIntent","stateMutability":"nonpayable","inputs":[{"name":"intentId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"addRelayer","stateMutability":"nonpayable","inputs":[{"name":"relayer","type":"address"}],"outputs":[]},
	{"type":"function","name":"getIntentDetails","stateMutability":"view","inputs":[{"name":"intentId","type":"uint256"}],"outputs":[{"name":"user","type":"address"},{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"amountA","type":"uint256"},{"name":"expectedAmountB","type":"uint256"},{"name":"reward","type":"uint256"},{"name":"endTime","type":"uint256"},{"name":"state","type":"uint8"},{"name":"winningSolver","type":"address"},{"name":"winningBid","type":"uint256"}]},
	{"type":"function","name":"getHighestBid","stateMutability":"view","inputs":[{"name":"intentId","type":"uint256"}],"outputs":[{"name":"amount","type":"uint256"},{"name":"bidder","type":"address"}]},
	{"type":"function","name":"isIntentSolvedOnChain2","stateMutability":"view","inputs":[{"name":"intentId","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"getLatestIntentId","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getActiveIntents","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256[]"}]},
	{"type":"function","name":"authorizedRelayers","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"getLocalIntentId","stateMutability":"pure","inputs":[{"name":"intentId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"IntentCreated","anonymous":false,"inputs":[{"name":"intentId","type":"uint256","indexed":true},{"name":"user","type":"address","indexed":true},{"name":"tokenA","type":"address","indexed":false},{"name":"tokenB","type":"address","indexed":false},{"name":"amountA","type":"uint256","indexed":false},{"name":"expectedAmountB","type":"uint256","indexed":false},{"name":"reward","type":"uint256","indexed":false},{"name":"endTime","type":"uint256","indexed":false}]},
	{"type":"event","name":"BidPlaced","anonymous":false,"inputs":[{"name":"intentId","type":"uint256","indexed":true},{"name":"solver","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false},{"name":"timestamp","type":"uint256","indexed":false}]},
	{"type":"event","name":"IntentWon","anonymous":false,"inputs":[{"name":"intentId","type":"uint256","indexed":true},{"name":"winner","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"SolverDeposited","anonymous":false,"inputs":[{"name":"intentId","type":"uint256","indexed":true},{"name":"solver","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"IntentSettled","anonymous":false,"inputs":[{"name":"intentId","type":"uint256","indexed":true},{"name":"solver","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"IntentCompleted","anonymous":false,"inputs":[{"name":"intentId","type":"uint256","indexed":true}]},
	{"type":"event","name":"IntentCancelled","anonymous":false,"inputs":[{"name":"intentId","type":"uint256","indexed":true}]},
	{"type":"event","name":"IntentSolvedOnChain2","anonymous":false,"inputs":[{"name":"intentId","type":"uint256","indexed":true},{"name":"solver","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]}
]`

// BridgeIntent is a Go binding around the BridgeIntent contract.
type BridgeIntent struct {
	BridgeIntentCaller     // Read-only binding to the contract
	BridgeIntentTransactor // Write-only binding to the contract
	BridgeIntentFilterer   // Log filterer for contract events
}

// BridgeIntentCaller is a read-only Go binding around the BridgeIntent contract.
type BridgeIntentCaller struct {
	contract *bind.BoundContract // Generic contract wrapper for the low level calls
}

// BridgeIntentTransactor is a write-only Go binding around the BridgeIntent contract.
type BridgeIntentTransactor struct {
	contract *bind.BoundContract // Generic contract wrapper for the low level calls
}

// BridgeIntentFilterer is a log filtering Go binding around the BridgeIntent contract events.
type BridgeIntentFilterer struct {
	contract *bind.BoundContract // Generic contract wrapper for the low level calls
}

// NewBridgeIntent creates a new instance of BridgeIntent, bound to a specific deployed contract.
func NewBridgeIntent(address common.Address, backend bind.ContractBackend) (*BridgeIntent, error) {
	contract, err := bindBridgeIntent(address, backend, backend, backend)
	if err != nil {
		return nil, err
	}
	return &BridgeIntent{
		BridgeIntentCaller:     BridgeIntentCaller{contract: contract},
		BridgeIntentTransactor: BridgeIntentTransactor{contract: contract},
		BridgeIntentFilterer:   BridgeIntentFilterer{contract: contract},
	}, nil
}

// bindBridgeIntent binds a generic wrapper to an already deployed contract.
func bindBridgeIntent(address common.Address, caller bind.ContractCaller, transactor bind.ContractTransactor, filterer bind.ContractFilterer) (*bind.BoundContract, error) {
	parsed, err := abi.JSON(strings.NewReader(BridgeIntentABI))
	if err != nil {
		return nil, err
	}
	return bind.NewBoundContract(address, parsed, caller, transactor, filterer), nil
}

// BridgeIntentDetails is the output of getIntentDetails.
type BridgeIntentDetails struct {
	User            common.Address
	TokenA          common.Address
	TokenB          common.Address
	AmountA         *big.Int
	ExpectedAmountB *big.Int
	Reward          *big.Int
	EndTime         *big.Int
	State           uint8
	WinningSolver   common.Address
	WinningBid      *big.Int
}

// GetIntentDetails is a free data retrieval call binding the contract method.
//
// Solidity: function getIntentDetails(uint256 intentId) view returns(address user, address tokenA, address tokenB, uint256 amountA, uint256 expectedAmountB, uint256 reward, uint256 endTime, uint8 state, address winningSolver, uint256 winningBid)
func (_BridgeIntent *BridgeIntentCaller) GetIntentDetails(opts *bind.CallOpts, intentId *big.Int) (BridgeIntentDetails, error) {
	var out []interface{}
	err := _BridgeIntent.contract.Call(opts, &out, "getIntentDetails", intentId)

	outstruct := new(BridgeIntentDetails)
	if err != nil {
		return *outstruct, err
	}

	outstruct.User = *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	outstruct.TokenA = *abi.ConvertType(out[1], new(common.Address)).(*common.Address)
	outstruct.TokenB = *abi.ConvertType(out[2], new(common.Address)).(*common.Address)
	outstruct.AmountA = *abi.ConvertType(out[3], new(*big.Int)).(**big.Int)
	outstruct.ExpectedAmountB = *abi.ConvertType(out[4], new(*big.Int)).(**big.Int)
	outstruct.Reward = *abi.ConvertType(out[5], new(*big.Int)).(**big.Int)
	outstruct.EndTime = *abi.ConvertType(out[6], new(*big.Int)).(**big.Int)
	outstruct.State = *abi.ConvertType(out[7], new(uint8)).(*uint8)
	outstruct.WinningSolver = *abi.ConvertType(out[8], new(common.Address)).(*common.Address)
	outstruct.WinningBid = *abi.ConvertType(out[9], new(*big.Int)).(**big.Int)

	return *outstruct, err
}

// BridgeIntentHighestBid is the output of getHighestBid.
type BridgeIntentHighestBid struct {
	Amount *big.Int
	Bidder common.Address
}

// GetHighestBid is a free data retrieval call binding the contract method.
//
// Solidity: function getHighestBid(uint256 intentId) view returns(uint256 amount, address bidder)
func (_BridgeIntent *BridgeIntentCaller) GetHighestBid(opts *bind.CallOpts, intentId *big.Int) (BridgeIntentHighestBid, error) {
	var out []interface{}
	err := _BridgeIntent.contract.Call(opts, &out, "getHighestBid", intentId)

	outstruct := new(BridgeIntentHighestBid)
	if err != nil {
		return *outstruct, err
	}

	outstruct.Amount = *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	outstruct.Bidder = *abi.ConvertType(out[1], new(common.Address)).(*common.Address)

	return *outstruct, err
}

// IsIntentSolvedOnChain2 is a free data retrieval call binding the contract method.
//
// Solidity: function isIntentSolvedOnChain2(uint256 intentId) view returns(bool)
func (_BridgeIntent *BridgeIntentCaller) IsIntentSolvedOnChain2(opts *bind.CallOpts, intentId *big.Int) (bool, error) {
	var out []interface{}
	err := _BridgeIntent.contract.Call(opts, &out, "isIntentSolvedOnChain2", intentId)
	if err != nil {
		return *new(bool), err
	}

	out0 := *abi.ConvertType(out[0], new(bool)).(*bool)
	return out0, err
}

// GetLatestIntentId is a free data retrieval call binding the contract method.
//
// Solidity: function getLatestIntentId() view returns(uint256)
func (_BridgeIntent *BridgeIntentCaller) GetLatestIntentId(opts *bind.CallOpts) (*big.Int, error) {
	var out []interface{}
	err := _BridgeIntent.contract.Call(opts, &out, "getLatestIntentId")
	if err != nil {
		return *new(*big.Int), err
	}

	out0 := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return out0, err
}

// GetActiveIntents is a free data retrieval call binding the contract method.
//
// Solidity: function getActiveIntents() view returns(uint256[])
func (_BridgeIntent *BridgeIntentCaller) GetActiveIntents(opts *bind.CallOpts) ([]*big.Int, error) {
	var out []interface{}
	err := _BridgeIntent.contract.Call(opts, &out, "getActiveIntents")
	if err != nil {
		return *new([]*big.Int), err
	}

	out0 := *abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int)
	return out0, err
}

// AuthorizedRelayers is a free data retrieval call binding the contract method.
//
// Solidity: function authorizedRelayers(address ) view returns(bool)
func (_BridgeIntent *BridgeIntentCaller) AuthorizedRelayers(opts *bind.CallOpts, relayer common.Address) (bool, error) {
	var out []interface{}
	err := _BridgeIntent.contract.Call(opts, &out, "authorizedRelayers", relayer)
	if err != nil {
		return *new(bool), err
	}

	out0 := *abi.ConvertType(out[0], new(bool)).(*bool)
	return out0, err
}

// GetLocalIntentId is a free data retrieval call binding the contract method.
//
// Solidity: function getLocalIntentId(uint256 intentId) pure returns(uint256)
func (_BridgeIntent *BridgeIntentCaller) GetLocalIntentId(opts *bind.CallOpts, intentId *big.Int) (*big.Int, error) {
	var out []interface{}
	err := _BridgeIntent.contract.Call(opts, &out, "getLocalIntentId", intentId)
	if err != nil {
		return *new(*big.Int), err
	}

	out0 := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return out0, err
}

// CreateIntent is a paid mutator transaction binding the contract method.
//
// Solidity: function createIntent(address tokenA, address tokenB, uint256 amountA, uint256 expectedAmountB, uint256 reward, uint256 auctionDuration) returns(uint256 intentId)
func (_BridgeIntent *BridgeIntentTransactor) CreateIntent(opts *bind.TransactOpts, tokenA common.Address, tokenB common.Address, amountA *big.Int, expectedAmountB *big.Int, reward *big.Int, auctionDuration *big.Int) (*types.Transaction, error) {
	return _BridgeIntent.contract.Transact(opts, "createIntent", tokenA, tokenB, amountA, expectedAmountB, reward, auctionDuration)
}

// PlaceBid is a paid mutator transaction binding the contract method.
//
// Solidity: function placeBid(uint256 intentId, uint256 amount) returns()
func (_BridgeIntent *BridgeIntentTransactor) PlaceBid(opts *bind.TransactOpts, intentId *big.Int, amount *big.Int) (*types.Transaction, error) {
	return _BridgeIntent.contract.Transact(opts, "placeBid", intentId, amount)
}

// FinalizeAuction is a paid mutator transaction binding the contract method.
//
// Solidity: function finalizeAuction(uint256 intentId) returns()
func (_BridgeIntent *BridgeIntentTransactor) FinalizeAuction(opts *bind.TransactOpts, intentId *big.Int) (*types.Transaction, error) {
	return _BridgeIntent.contract.Transact(opts, "finalizeAuction", intentId)
}

// DepositAndPickup is a paid mutator transaction binding the contract method.
//
// Solidity: function depositAndPickup(uint256 intentId) returns()
func (_BridgeIntent *BridgeIntentTransactor) DepositAndPickup(opts *bind.TransactOpts, intentId *big.Int) (*types.Transaction, error) {
	return _BridgeIntent.contract.Transact(opts, "depositAndPickup", intentId)
}

// SettleIntent is a paid mutator transaction binding the contract method.
//
// Solidity: function settleIntent(uint256 intentId) returns()
func (_BridgeIntent *BridgeIntentTransactor) SettleIntent(opts *bind.TransactOpts, intentId *big.Int) (*types.Transaction, error) {
	return _BridgeIntent.contract.Transact(opts, "settleIntent", intentId)
}

// SettleIntentWithChain2Verification is a paid mutator transaction binding the contract method.
//
// Solidity: function settleIntentWithChain2Verification(uint256 intentId, uint256 chain2IntentId) returns()
func (_BridgeIntent *BridgeIntentTransactor) SettleIntentWithChain2Verification(opts *bind.TransactOpts, intentId *big.Int, chain2IntentId *big.Int) (*types.Transaction, error) {
	return _BridgeIntent.contract.Transact(opts, "settleIntentWithChain2Verification", intentId, chain2IntentId)
}

// SolveIntentOnChain2 is a paid mutator transaction binding the contract method.
//
// Solidity: function solveIntentOnChain2(uint256 intentId, address user, address token, uint256 amount, address[] recipients, uint256[] amounts) returns()
func (_BridgeIntent *BridgeIntentTransactor) SolveIntentOnChain2(opts *bind.TransactOpts, intentId *big.Int, user common.Address, token common.Address, amount *big.Int, recipients []common.Address, amounts []*big.Int) (*types.Transaction, error) {
	return _BridgeIntent.contract.Transact(opts, "solveIntentOnChain2", intentId, user, token, amount, recipients, amounts)
}

// CancelIntent is a paid mutator transaction binding the contract method.
//
// Solidity: function cancelIntent(uint256 intentId) returns()
func (_BridgeIntent *BridgeIntentTransactor) CancelIntent(opts *bind.TransactOpts, intentId *big.Int) (*types.Transaction, error) {
	return _BridgeIntent.contract.Transact(opts, "cancelIntent", intentId)
}

// AddRelayer is a paid mutator transaction binding the contract method.
//
// Solidity: function addRelayer(address relayer) returns()
func (_BridgeIntent *BridgeIntentTransactor) AddRelayer(opts *bind.TransactOpts, relayer common.Address) (*types.Transaction, error) {
	return _BridgeIntent.contract.Transact(opts, "addRelayer", relayer)
}

// logIterator walks the raw logs of one event type returned by FilterLogs.
type logIterator struct {
	contract *bind.BoundContract // Generic contract to use for unpacking event data
	event    string              // Event name to use for unpacking event data

	logs chan types.Log        // Log channel receiving the found contract events
	sub  ethereum.Subscription // Subscription for errors, completion and termination
	done bool                  // Whether the subscription completed delivering logs
	fail error                 // Occurred error to stop iteration
}

// next unpacks the subsequent log into out, returning whether one was found. In case
// of a retrieval or parsing error, false is returned and the failure is kept.
func (it *logIterator) next(out interface{}) (types.Log, bool) {
	if it.fail != nil {
		return types.Log{}, false
	}
	if it.done {
		select {
		case log := <-it.logs:
			return it.unpack(out, log)
		default:
			return types.Log{}, false
		}
	}
	select {
	case log := <-it.logs:
		return it.unpack(out, log)
	case err := <-it.sub.Err():
		it.done = true
		it.fail = err
		return it.next(out)
	}
}

func (it *logIterator) unpack(out interface{}, log types.Log) (types.Log, bool) {
	if err := it.contract.UnpackLog(out, it.event, log); err != nil {
		it.fail = err
		return types.Log{}, false
	}
	return log, true
}

// Error returns any retrieval or parsing error occurred during filtering.
func (it *logIterator) Error() error {
	return it.fail
}

// Close terminates the iteration process, releasing any pending underlying
// resources.
func (it *logIterator) Close() error {
	it.sub.Unsubscribe()
	return nil
}

func intentIDRule(intentID []*big.Int) []interface{} {
	var rule []interface{}
	for _, item := range intentID {
		rule = append(rule, item)
	}
	return rule
}

func addressRule(addrs []common.Address) []interface{} {
	var rule []interface{}
	for _, item := range addrs {
		rule = append(rule, item)
	}
	return rule
}

// BridgeIntentIntentCreated represents a IntentCreated event raised by the BridgeIntent contract.
type BridgeIntentIntentCreated struct {
	IntentId        *big.Int
	User            common.Address
	TokenA          common.Address
	TokenB          common.Address
	AmountA         *big.Int
	ExpectedAmountB *big.Int
	Reward          *big.Int
	EndTime         *big.Int
	Raw             types.Log // Blockchain specific contextual infos
}

// BridgeIntentIntentCreatedIterator is returned from FilterIntentCreated and is used to iterate over
// the raw logs and unpacked data for IntentCreated events.
type BridgeIntentIntentCreatedIterator struct {
	Event *BridgeIntentIntentCreated
	logIterator
}

// Next advances the iterator to the subsequent event, returning whether there
// are any more events found.
func (it *BridgeIntentIntentCreatedIterator) Next() bool {
	event := new(BridgeIntentIntentCreated)
	log, ok := it.next(event)
	if !ok {
		return false
	}
	event.Raw = log
	it.Event = event
	return true
}

// FilterIntentCreated is a free log retrieval operation binding the contract event.
//
// Solidity: event IntentCreated(uint256 indexed intentId, address indexed user, address tokenA, address tokenB, uint256 amountA, uint256 expectedAmountB, uint256 reward, uint256 endTime)
func (_BridgeIntent *BridgeIntentFilterer) FilterIntentCreated(opts *bind.FilterOpts, intentId []*big.Int, user []common.Address) (*BridgeIntentIntentCreatedIterator, error) {
	logs, sub, err := _BridgeIntent.contract.FilterLogs(opts, "IntentCreated", intentIDRule(intentId), addressRule(user))
	if err != nil {
		return nil, err
	}
	return &BridgeIntentIntentCreatedIterator{logIterator: logIterator{contract: _BridgeIntent.contract, event: "IntentCreated", logs: logs, sub: sub}}, nil
}

// ParseIntentCreated is a log parse operation binding the contract event.
func (_BridgeIntent *BridgeIntentFilterer) ParseIntentCreated(log types.Log) (*BridgeIntentIntentCreated, error) {
	event := new(BridgeIntentIntentCreated)
	if err := _BridgeIntent.contract.UnpackLog(event, "IntentCreated", log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}

// BridgeIntentIntentWon represents a IntentWon event raised by the BridgeIntent contract.
type BridgeIntentIntentWon struct {
	IntentId *big.Int
	Winner   common.Address
	Amount   *big.Int
	Raw      types.Log // Blockchain specific contextual infos
}

// BridgeIntentIntentWonIterator is returned from FilterIntentWon and is used to iterate over
// the raw logs and unpacked data for IntentWon events.
type BridgeIntentIntentWonIterator struct {
	Event *BridgeIntentIntentWon
	logIterator
}

// Next advances the iterator to the subsequent event, returning whether there
// are any more events found.
func (it *BridgeIntentIntentWonIterator) Next() bool {
	event := new(BridgeIntentIntentWon)
	log, ok := it.next(event)
	if !ok {
		return false
	}
	event.Raw = log
	it.Event = event
	return true
}

// FilterIntentWon is a free log retrieval operation binding the contract event.
//
// Solidity: event IntentWon(uint256 indexed intentId, address indexed winner, uint256 amount)
func (_BridgeIntent *BridgeIntentFilterer) FilterIntentWon(opts *bind.FilterOpts, intentId []*big.Int, winner []common.Address) (*BridgeIntentIntentWonIterator, error) {
	logs, sub, err := _BridgeIntent.contract.FilterLogs(opts, "IntentWon", intentIDRule(intentId), addressRule(winner))
	if err != nil {
		return nil, err
	}
	return &BridgeIntentIntentWonIterator{logIterator: logIterator{contract: _BridgeIntent.contract, event: "IntentWon", logs: logs, sub: sub}}, nil
}

// BridgeIntentBidPlaced represents a BidPlaced event raised by the BridgeIntent contract.
type BridgeIntentBidPlaced struct {
	IntentId  *big.Int
	Solver    common.Address
	Amount    *big.Int
	Timestamp *big.Int
	Raw       types.Log // Blockchain specific contextual infos
}

// BridgeIntentBidPlacedIterator is returned from FilterBidPlaced and is used to iterate over
// the raw logs and unpacked data for BidPlaced events.
type BridgeIntentBidPlacedIterator struct {
	Event *BridgeIntentBidPlaced
	logIterator
}

// Next advances the iterator to the subsequent event, returning whether there
// are any more events found.
func (it *BridgeIntentBidPlacedIterator) Next() bool {
	event := new(BridgeIntentBidPlaced)
	log, ok := it.next(event)
	if !ok {
		return false
	}
	event.Raw = log
	it.Event = event
	return true
}

// FilterBidPlaced is a free log retrieval operation binding the contract event.
//
// Solidity: event BidPlaced(uint256 indexed intentId, address indexed solver, uint256 amount, uint256 timestamp)
func (_BridgeIntent *BridgeIntentFilterer) FilterBidPlaced(opts *bind.FilterOpts, intentId []*big.Int, solver []common.Address) (*BridgeIntentBidPlacedIterator, error) {
	logs, sub, err := _BridgeIntent.contract.FilterLogs(opts, "BidPlaced", intentIDRule(intentId), addressRule(solver))
	if err != nil {
		return nil, err
	}
	return &BridgeIntentBidPlacedIterator{logIterator: logIterator{contract: _BridgeIntent.contract, event: "BidPlaced", logs: logs, sub: sub}}, nil
}
