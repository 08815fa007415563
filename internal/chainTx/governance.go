package chainTx

import (
	"fmt"

	"token_purchase/internal/sale"

	"github.com/gagliardetto/solana-go"
)

// DeriveGovernanceAddresses 推导治理程序的 PDA 账户
func DeriveGovernanceAddresses(governanceProgram, realm, mint, wallet solana.PublicKey) (sale.GovernanceAccounts, error) {
	out := sale.GovernanceAccounts{
		Realm:   realm,
		Program: governanceProgram,
	}

	seeds := []struct {
		target *solana.PublicKey
		name   string
		parts  [][]byte
	}{
		{&out.RealmConfig, "realmConfig", [][]byte{[]byte("realm-config"), realm[:]}},
		{&out.GoverningTokenHolding, "governingTokenHolding", [][]byte{[]byte("governance"), realm[:], mint[:]}},
		{&out.GovernanceTokenAccount, "governanceTokenAccount", [][]byte{[]byte("governance-token-account"), realm[:], mint[:], wallet[:]}},
		{&out.TokenOwnerRecord, "tokenOwnerRecord", [][]byte{[]byte("token-owner-record"), realm[:], mint[:], wallet[:]}},
	}

	for _, s := range seeds {
		addr, _, err := solana.FindProgramAddress(s.parts, governanceProgram)
		if err != nil {
			return sale.GovernanceAccounts{}, fmt.Errorf("推导%s失败: %w", s.name, err)
		}
		*s.target = addr
	}
	return out, nil
}
