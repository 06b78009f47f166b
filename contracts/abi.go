package contracts

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// The deployed lending contract spells its principal withdrawal "wihtdraw";
// the selector has to match the chain, not the dictionary.
const lendingABIJSON = `[
	{"type":"function","name":"lend","stateMutability":"payable","inputs":[],"outputs":[]},
	{"type":"function","name":"borrow","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"wihtdraw","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"repay","stateMutability":"payable","inputs":[],"outputs":[]},
	{"type":"function","name":"deposit","stateMutability":"nonpayable","inputs":[{"name":"nftAddress","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"withdrawCollateral","stateMutability":"nonpayable","inputs":[{"name":"nftAddress","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"isCollateralized","stateMutability":"view","inputs":[{"name":"nftAddress","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"myBalance","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"myDebt","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"myBorrowCapacity","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const nftABIJSON = `[
	{"type":"function","name":"claimNFT","stateMutability":"nonpayable","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getApproved","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":true}]}
]`

const (
	methodLend               = "lend"
	methodBorrow             = "borrow"
	methodWithdraw           = "wihtdraw"
	methodRepay              = "repay"
	methodDeposit            = "deposit"
	methodWithdrawCollateral = "withdrawCollateral"
	methodIsCollateralized   = "isCollateralized"
	methodBalance            = "myBalance"
	methodDebt               = "myDebt"
	methodBorrowCapacity     = "myBorrowCapacity"

	methodClaim       = "claimNFT"
	methodGetApproved = "getApproved"
	methodApprove     = "approve"
)

var (
	lendingABI = mustParseABI("lending", lendingABIJSON)
	nftABI     = mustParseABI("nft", nftABIJSON)

	transferEventSignature = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("contracts: parse %s abi: %v", name, err))
	}
	return parsed
}

// LendingABI exposes the parsed lending contract interface.
func LendingABI() abi.ABI { return lendingABI }

// NFTABI exposes the parsed ERC-721 subset used by the client.
func NFTABI() abi.ABI { return nftABI }
