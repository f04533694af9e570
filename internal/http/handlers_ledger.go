package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/zoeplatform/zoefinan/internal/core"
	"github.com/zoeplatform/zoefinan/internal/services"
)

type monthItem struct {
	Key   core.MonthKey `json:"key"`
	Label string        `json:"label"`
}

type monthsResponse struct {
	Current core.MonthKey `json:"current"`
	Months  []monthItem   `json:"months"`
}

func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request) {
	count, err := intQuery(r, "count", 12)
	if err != nil {
		writeError(w, r, err)
		return
	}
	months := s.ledger.Months()
	resp := monthsResponse{Current: months.CurrentMonthKey(), Months: []monthItem{}}
	for _, key := range months.MonthList(count) {
		label, err := months.FormatMonthLabel(string(key))
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp.Months = append(resp.Months, monthItem{Key: key, Label: label})
	}
	writeJSON(w, http.StatusOK, resp)
}

type evaluateRequest struct {
	Income    Amount `json:"income"`
	Committed Amount `json:"committed"`
}

func (s *Server) handleEvaluateHealth(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	income, err := req.Income.NonNegative("income")
	if err != nil {
		writeError(w, r, err)
		return
	}
	committed, err := req.Committed.NonNegative("committed")
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, core.EvaluateFinancialHealth(income, committed))
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.ledger.Document(r.Context(), currentUser(r.Context()).UID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	mode, err := services.ParseFallbackMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, r, invalid("mode", err))
		return
	}
	snap, err := s.ledger.Snapshot(r.Context(), currentUser(r.Context()).UID, month, mode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type entryRequest struct {
	Kind         string `json:"kind"`
	Description  string `json:"descricao"`
	Amount       Amount `json:"valor"`
	Creditor     string `json:"credor"`
	Balance      Amount `json:"saldo"`
	Installment  Amount `json:"parcela"`
	Installments bool   `json:"isParcelada"`
}

func (s *Server) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	kind, err := services.ParseEntryKind(req.Kind)
	if err != nil {
		writeError(w, r, invalid("kind", err))
		return
	}

	bucket, err := s.addEntry(r, kind, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, bucket)
}

func (s *Server) addEntry(r *http.Request, kind services.EntryKind, req entryRequest) (core.MonthlyBucket, error) {
	ctx, uid := r.Context(), currentUser(r.Context()).UID
	month, err := monthParam(r)
	if err != nil {
		return core.MonthlyBucket{}, err
	}
	if kind == services.KindDebt {
		balance, err := req.Balance.Positive("saldo")
		if err != nil {
			return core.MonthlyBucket{}, err
		}
		installment := decimal.Zero
		if req.Installments {
			if installment, err = req.Installment.Positive("parcela"); err != nil {
				return core.MonthlyBucket{}, err
			}
		}
		return s.ledger.AddDebt(ctx, uid, month, sanitizeInput(req.Creditor), balance, installment, req.Installments)
	}

	amount, err := req.Amount.Positive("valor")
	if err != nil {
		return core.MonthlyBucket{}, err
	}
	if kind == services.KindExtraIncome {
		return s.ledger.AddExtraIncome(ctx, uid, month, sanitizeInput(req.Description), amount)
	}
	return s.ledger.AddExpense(ctx, uid, month, sanitizeInput(req.Description), amount)
}

func (s *Server) handleRemoveEntry(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	kind, err := services.ParseEntryKind(vars["kind"])
	if err != nil {
		writeError(w, r, invalid("kind", err))
		return
	}
	bucket, err := s.ledger.RemoveEntry(r.Context(), currentUser(r.Context()).UID, month, kind, core.EntryID(vars["id"]))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bucket)
}

type incomeRequest struct {
	Amount Amount `json:"valor"`
}

func (s *Server) handleSetIncome(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req incomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := req.Amount.NonNegative("valor")
	if err != nil {
		writeError(w, r, err)
		return
	}
	bucket, err := s.ledger.SetBaseIncome(r.Context(), currentUser(r.Context()).UID, month, amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bucket)
}

type setupExpenseRow struct {
	Description string `json:"descricao"`
	Amount      Amount `json:"valor"`
}

type setupDebtRow struct {
	Creditor     string `json:"credor"`
	Balance      Amount `json:"saldo"`
	Installment  Amount `json:"parcela"`
	Installments bool   `json:"isParcelada"`
}

type setupRequest struct {
	BaseIncome Amount            `json:"rendaMensal"`
	Expenses   []setupExpenseRow `json:"despesasFixas"`
	Debts      []setupDebtRow    `json:"dividas"`
}

// handleSetup accepts blank rows; the ledger drops them.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req setupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	income, err := req.BaseIncome.NonNegative("rendaMensal")
	if err != nil {
		writeError(w, r, err)
		return
	}
	in := services.SetupInput{BaseIncome: income}
	for _, row := range req.Expenses {
		amount, err := row.Amount.NonNegative("despesasFixas.valor")
		if err != nil {
			writeError(w, r, err)
			return
		}
		in.Expenses = append(in.Expenses, services.SetupExpense{Description: sanitizeInput(row.Description), Amount: amount})
	}
	for _, row := range req.Debts {
		balance, err := row.Balance.NonNegative("dividas.saldo")
		if err != nil {
			writeError(w, r, err)
			return
		}
		installment, err := row.Installment.NonNegative("dividas.parcela")
		if err != nil {
			writeError(w, r, err)
			return
		}
		in.Debts = append(in.Debts, services.SetupDebt{
			Creditor:     sanitizeInput(row.Creditor),
			Balance:      balance,
			Installment:  installment,
			Installments: row.Installments,
		})
	}

	doc, err := s.ledger.CompleteSetup(r.Context(), currentUser(r.Context()).UID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type fixedExpenseRow struct {
	ID          core.EntryID `json:"id"`
	Description string       `json:"descricao"`
	Amount      Amount       `json:"valor"`
}

func (s *Server) handleReplaceFixedExpenses(w http.ResponseWriter, r *http.Request) {
	var rows []fixedExpenseRow
	if err := decodeJSON(w, r, &rows); err != nil {
		writeError(w, r, err)
		return
	}
	now := time.Now()
	entries := make([]core.Entry, 0, len(rows))
	for i, row := range rows {
		amount, err := row.Amount.Positive("valor")
		if err != nil {
			writeError(w, r, err)
			return
		}
		e, err := core.NewEntry(sanitizeInput(row.Description), amount, now.Add(time.Duration(i)*time.Millisecond))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if row.ID != "" {
			e.ID = row.ID
		}
		entries = append(entries, e)
	}

	doc, err := s.ledger.ReplaceFixedExpenses(r.Context(), currentUser(r.Context()).UID, entries)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc.FixedExpenses)
}

type debtRow struct {
	ID           core.EntryID `json:"id"`
	Creditor     string       `json:"credor"`
	Balance      Amount       `json:"saldo"`
	Installment  Amount       `json:"parcela"`
	Installments bool         `json:"isParcelada"`
}

func (s *Server) handleReplaceDebts(w http.ResponseWriter, r *http.Request) {
	var rows []debtRow
	if err := decodeJSON(w, r, &rows); err != nil {
		writeError(w, r, err)
		return
	}
	now := time.Now()
	debts := make([]core.Debt, 0, len(rows))
	for i, row := range rows {
		balance, err := row.Balance.Positive("saldo")
		if err != nil {
			writeError(w, r, err)
			return
		}
		installment := decimal.Zero
		if row.Installments {
			if installment, err = row.Installment.Positive("parcela"); err != nil {
				writeError(w, r, err)
				return
			}
		}
		d, err := core.NewDebt(sanitizeInput(row.Creditor), balance, installment, row.Installments, now.Add(time.Duration(i)*time.Millisecond))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if row.ID != "" {
			d.ID = row.ID
		}
		debts = append(debts, d)
	}

	doc, err := s.ledger.ReplaceDebts(r.Context(), currentUser(r.Context()).UID, debts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc.Debts)
}

type reserveResponse struct {
	EmergencyReserve decimal.Decimal `json:"reservaEmergencia"`
}

func (s *Server) handleAddReserve(w http.ResponseWriter, r *http.Request) {
	var req incomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := req.Amount.Positive("valor")
	if err != nil {
		writeError(w, r, err)
		return
	}
	total, err := s.ledger.AddEmergencyReserve(r.Context(), currentUser(r.Context()).UID, amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reserveResponse{EmergencyReserve: total})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.ResetAccount(r.Context(), currentUser(r.Context()).UID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
